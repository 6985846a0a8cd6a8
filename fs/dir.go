package fs

// The volume has no namespace. The directory operations exist so callers can
// be written against the full surface; each validates the session and then
// fails with ErrNotSupported.

func (s *Session) OpenDir(path string) (int, error) {
	if err := s.checkMounted(); err != nil {
		return -1, err
	}
	return -1, ErrNotSupported
}

func (s *Session) ReadDir(fd int) ([]string, error) {
	if err := s.checkMounted(); err != nil {
		return nil, err
	}
	return nil, ErrNotSupported
}

func (s *Session) CloseDir(fd int) error {
	if err := s.checkMounted(); err != nil {
		return err
	}
	return ErrNotSupported
}

func (s *Session) Link(oldPath, newPath string) error {
	if err := s.checkMounted(); err != nil {
		return err
	}
	return ErrNotSupported
}

func (s *Session) Unlink(path string) error {
	if err := s.checkMounted(); err != nil {
		return err
	}
	return ErrNotSupported
}
