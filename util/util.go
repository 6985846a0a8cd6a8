package util

import "log"

// Debug is the highest DPrintf level that is printed.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp returns the number of sz-sized units needed to hold n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

// AlignUp rounds n up to the next multiple of sz.
func AlignUp(n uint64, sz uint64) uint64 {
	return RoundUp(n, sz) * sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func Max(n uint64, m uint64) uint64 {
	if n > m {
		return n
	}
	return m
}

func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func MulOverflows(n uint64, m uint64) bool {
	if n == 0 || m == 0 {
		return false
	}
	return (n*m)/m != n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}

func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
