package native

// stepmap tracks per-type proposal step sizes with a shared default.
type stepmap struct {
	def   float64
	sizes map[string]float64
}

func newStepmap(def float64) stepmap {
	return stepmap{def: def, sizes: make(map[string]float64)}
}

func (s *stepmap) get(typeName string) float64 {
	if v, ok := s.sizes[typeName]; ok {
		return v
	}
	return s.def
}

func (s *stepmap) set(typeName string, v float64) {
	s.sizes[typeName] = v
}

func (s *stepmap) scale(typeName string, factor float64) {
	s.sizes[typeName] = s.get(typeName) * factor
}

func (s *stepmap) snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.sizes))
	for k, v := range s.sizes {
		out[k] = v
	}
	return out
}
