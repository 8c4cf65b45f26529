package memory

func (s *Store) Consistent() bool {
	return s.consistent()
}
