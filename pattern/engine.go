package pattern

// matchState carries the mutable state of one matching attempt: the
// subject/pattern rune slices, open/closed captures, and a recursion
// budget mirroring Lua's own "pattern too complex" guard.
type matchState struct {
	src, pat []rune
	level    int
	capStart [maxCaptures]int
	capLen   [maxCaptures]int
	depth    int
}

func newMatchState(src, pat []rune) *matchState {
	return &matchState{src: src, pat: pat, depth: maxMatchDepth}
}

// doMatch is the backtracking engine itself: a direct port of Lua 5.1's
// `match` function in lstrlib.c, restructured from C's goto/continue
// idiom into Go's for/continue/switch.
func (ms *matchState) doMatch(s, p int) (int, error) {
	if ms.depth == 0 {
		return -1, ErrPatternTooComplex
	}
	ms.depth--
	defer func() { ms.depth++ }()

	for p < len(ms.pat) {
		switch ms.pat[p] {
		case '(':
			if p+1 < len(ms.pat) && ms.pat[p+1] == ')' {
				return ms.startCapture(s, p+2, capPosition)
			}
			return ms.startCapture(s, p+1, capUnfinished)

		case ')':
			return ms.endCapture(s, p+1)

		case '$':
			if p+1 == len(ms.pat) {
				if s == len(ms.src) {
					return s, nil
				}
				return -1, nil
			}
			// Not pattern-final: "$" is a literal char, fall to default.

		case '%':
			if p+1 < len(ms.pat) {
				switch ms.pat[p+1] {
				case 'b':
					ns, err := ms.matchBalance(s, p+2)
					if err != nil {
						return -1, err
					}
					if ns < 0 {
						return -1, nil
					}
					s = ns
					p += 4
					continue

				case 'f':
					p += 2
					if p >= len(ms.pat) || ms.pat[p] != '[' {
						return -1, ErrMalformedPattern
					}
					ep, err := classEnd(ms.pat, p)
					if err != nil {
						return -1, err
					}
					var previous rune
					if s > 0 {
						previous = ms.src[s-1]
					}
					atEnd := s >= len(ms.src)
					var cur rune
					if !atEnd {
						cur = ms.src[s]
					}
					if !matchSetRune(ms.pat, previous, p+1, ep-1) && !atEnd && matchSetRune(ms.pat, cur, p+1, ep-1) {
						p = ep
						continue
					}
					return -1, nil

				default:
					if ms.pat[p+1] >= '0' && ms.pat[p+1] <= '9' {
						ns, err := ms.matchCapture(s, int(ms.pat[p+1]-'0'))
						if err != nil {
							return -1, err
						}
						if ns < 0 {
							return -1, nil
						}
						s = ns
						p += 2
						continue
					}
				}
			}
		}

		ep, err := classEnd(ms.pat, p)
		if err != nil {
			return -1, err
		}
		matched := singleMatch(ms.src, ms.pat, s, p, ep)
		if !matched {
			if ep < len(ms.pat) {
				switch ms.pat[ep] {
				case '*', '?', '-':
					p = ep + 1
					continue
				}
			}
			return -1, nil
		}

		if ep < len(ms.pat) {
			switch ms.pat[ep] {
			case '?':
				res, err := ms.doMatch(s+1, ep+1)
				if err != nil {
					return -1, err
				}
				if res >= 0 {
					return res, nil
				}
				p = ep + 1
				continue
			case '+':
				return ms.maxExpand(s+1, p, ep)
			case '*':
				return ms.maxExpand(s, p, ep)
			case '-':
				return ms.minExpand(s, p, ep)
			}
		}
		s++
		p = ep
	}
	return s, nil
}

func (ms *matchState) maxExpand(s, p, ep int) (int, error) {
	i := 0
	for singleMatch(ms.src, ms.pat, s+i, p, ep) {
		i++
	}
	for i >= 0 {
		res, err := ms.doMatch(s+i, ep+1)
		if err != nil {
			return -1, err
		}
		if res >= 0 {
			return res, nil
		}
		i--
	}
	return -1, nil
}

func (ms *matchState) minExpand(s, p, ep int) (int, error) {
	for {
		res, err := ms.doMatch(s, ep+1)
		if err != nil {
			return -1, err
		}
		if res >= 0 {
			return res, nil
		}
		if singleMatch(ms.src, ms.pat, s, p, ep) {
			s++
		} else {
			return -1, nil
		}
	}
}

func (ms *matchState) matchBalance(s, p int) (int, error) {
	if p+1 >= len(ms.pat) {
		return -1, ErrMalformedPattern
	}
	if s >= len(ms.src) || ms.src[s] != ms.pat[p] {
		return -1, nil
	}
	b, e := ms.pat[p], ms.pat[p+1]
	cont := 1
	s++
	for s < len(ms.src) {
		if ms.src[s] == e {
			cont--
			if cont == 0 {
				return s + 1, nil
			}
		} else if ms.src[s] == b {
			cont++
		}
		s++
	}
	return -1, nil
}

func (ms *matchState) startCapture(s, p, what int) (int, error) {
	level := ms.level
	if level >= maxCaptures {
		return -1, ErrTooManyCaptures
	}
	ms.capStart[level] = s
	ms.capLen[level] = what
	ms.level++
	res, err := ms.doMatch(s, p)
	if err != nil {
		return -1, err
	}
	if res < 0 {
		ms.level--
	}
	return res, nil
}

func (ms *matchState) endCapture(s, p int) (int, error) {
	l := -1
	for i := ms.level - 1; i >= 0; i-- {
		if ms.capLen[i] == capUnfinished {
			l = i
			break
		}
	}
	if l < 0 {
		return -1, ErrInvalidCaptureIndex
	}
	ms.capLen[l] = s - ms.capStart[l]
	res, err := ms.doMatch(s, p)
	if err != nil {
		return -1, err
	}
	if res < 0 {
		ms.capLen[l] = capUnfinished
	}
	return res, nil
}

func (ms *matchState) checkCapture(idx int) (int, error) {
	l := idx - 1
	if l < 0 || l >= ms.level || ms.capLen[l] == capUnfinished {
		return 0, ErrInvalidCaptureIndex
	}
	return l, nil
}

func (ms *matchState) matchCapture(s, idx int) (int, error) {
	l, err := ms.checkCapture(idx)
	if err != nil {
		return -1, err
	}
	length := ms.capLen[l]
	start := ms.capStart[l]
	if len(ms.src)-s < length {
		return -1, nil
	}
	for i := 0; i < length; i++ {
		if ms.src[start+i] != ms.src[s+i] {
			return -1, nil
		}
	}
	return s + length, nil
}
