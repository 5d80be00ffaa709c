package modhost

import (
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/text/unicode/norm"

	"github.com/mwcore/wikirender/pattern"
)

// Size caps for ustring operations.
const (
	maxPatternLen = 10_000
	maxStringLen  = 2 * 1024 * 1024
)

// registerUstringLib installs mw.ustring: Unicode-aware string support
// over the backtracking pattern matcher, with rune indices where Lua's
// string library would use bytes.
func (inv *invocation) registerUstringLib(L *lua.LState, mw *lua.LTable) {
	lib := L.NewTable()

	L.SetField(lib, "len", L.NewFunction(func(L *lua.LState) int {
		s := checkSubject(L, 1)
		L.Push(lua.LNumber(utf8.RuneCountInString(s)))
		return 1
	}))

	L.SetField(lib, "sub", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		i := relIndex(int(L.OptNumber(2, 1)), len(src))
		j := relIndex(int(L.OptNumber(3, -1)), len(src))
		if i < 1 {
			i = 1
		}
		if j > len(src) {
			j = len(src)
		}
		if i > j {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(string(src[i-1 : j])))
		return 1
	}))

	L.SetField(lib, "upper", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(strings.ToUpper(checkSubject(L, 1))))
		return 1
	}))
	L.SetField(lib, "lower", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(strings.ToLower(checkSubject(L, 1))))
		return 1
	}))

	L.SetField(lib, "char", L.NewFunction(func(L *lua.LState) int {
		var b strings.Builder
		for i := 1; i <= L.GetTop(); i++ {
			b.WriteRune(rune(L.CheckInt(i)))
		}
		L.Push(lua.LString(b.String()))
		return 1
	}))

	L.SetField(lib, "codepoint", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		i := relIndex(int(L.OptNumber(2, 1)), len(src))
		j := relIndex(int(L.OptNumber(3, lua.LNumber(i))), len(src))
		n := 0
		for k := i; k <= j && k >= 1 && k <= len(src); k++ {
			L.Push(lua.LNumber(src[k-1]))
			n++
		}
		return n
	}))

	L.SetField(lib, "byteoffset", L.NewFunction(func(L *lua.LState) int {
		s := checkSubject(L, 1)
		l := int(L.OptNumber(2, 1))
		off := 0
		count := 0
		for i := range s {
			count++
			if count == l {
				off = i
				L.Push(lua.LNumber(off + 1))
				return 1
			}
		}
		L.Push(lua.LNil)
		return 1
	}))

	L.SetField(lib, "find", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		pat := checkPattern(L, 2)
		init := relIndex(int(L.OptNumber(3, 1)), len(src))
		plain := lua.LVAsBool(L.Get(4))

		if plain {
			hay := string(src[clamp(init-1, 0, len(src)):])
			idx := strings.Index(hay, pat)
			if idx < 0 {
				L.Push(lua.LNil)
				return 1
			}
			start := init + utf8.RuneCountInString(hay[:idx]) - 1
			L.Push(lua.LNumber(start))
			L.Push(lua.LNumber(start + utf8.RuneCountInString(pat) - 1))
			return 2
		}

		m, err := pattern.Find(src, pat, init-1)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		if m == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(m.Start + 1))
		L.Push(lua.LNumber(m.End))
		return 2 + pushCaptures(L, src, m)
	}))

	L.SetField(lib, "match", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		pat := checkPattern(L, 2)
		init := relIndex(int(L.OptNumber(3, 1)), len(src))

		m, err := pattern.Find(src, pat, init-1)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		if m == nil {
			L.Push(lua.LNil)
			return 1
		}
		if len(m.Captures) == 0 {
			L.Push(lua.LString(string(src[m.Start:m.End])))
			return 1
		}
		return pushCaptures(L, src, m)
	}))

	L.SetField(lib, "gmatch", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		pat := checkPattern(L, 2)
		next := pattern.Gmatch(src, pat)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			m, err := next()
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			if m == nil {
				L.Push(lua.LNil)
				return 1
			}
			if len(m.Captures) == 0 {
				L.Push(lua.LString(string(src[m.Start:m.End])))
				return 1
			}
			return pushCaptures(L, src, m)
		}))
		return 1
	}))

	L.SetField(lib, "gsub", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		pat := checkPattern(L, 2)
		replVal := L.Get(3)
		maxN := int(L.OptNumber(4, -1))

		var replErr error
		repl := func(groups []string) string {
			switch rv := replVal.(type) {
			case lua.LString:
				return expandReplacement(string(rv), groups)
			case lua.LNumber:
				return lua.LVAsString(rv)
			case *lua.LTable:
				key := groups[0]
				if len(groups) > 1 {
					key = groups[1]
				}
				v := rv.RawGetString(key)
				if v == lua.LNil || v == lua.LFalse {
					return groups[0]
				}
				return lua.LVAsString(v)
			case *lua.LFunction:
				args := make([]lua.LValue, 0, len(groups))
				if len(groups) > 1 {
					for _, g := range groups[1:] {
						args = append(args, lua.LString(g))
					}
				} else {
					args = append(args, lua.LString(groups[0]))
				}
				if err := L.CallByParam(lua.P{Fn: rv, NRet: 1, Protect: true}, args...); err != nil {
					replErr = err
					return groups[0]
				}
				ret := L.Get(-1)
				L.Pop(1)
				if ret == lua.LNil || ret == lua.LFalse {
					return groups[0]
				}
				return lua.LVAsString(ret)
			default:
				return groups[0]
			}
		}

		out, n, err := pattern.Gsub(src, pat, maxN, repl)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		if replErr != nil {
			L.RaiseError("%v", replErr)
			return 0
		}
		L.Push(lua.LString(out))
		L.Push(lua.LNumber(n))
		return 2
	}))

	L.SetField(lib, "toNFC", normFn(L, norm.NFC))
	L.SetField(lib, "toNFD", normFn(L, norm.NFD))
	L.SetField(lib, "toNFKC", normFn(L, norm.NFKC))
	L.SetField(lib, "toNFKD", normFn(L, norm.NFKD))

	L.SetField(mw, "ustring", lib)
}

func normFn(L *lua.LState, f norm.Form) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(f.String(checkSubject(L, 1))))
		return 1
	})
}

func checkSubject(L *lua.LState, idx int) string {
	s := L.CheckString(idx)
	if len(s) > maxStringLen {
		L.RaiseError("string is longer than %d bytes", maxStringLen)
	}
	return s
}

func checkPattern(L *lua.LState, idx int) string {
	p := L.CheckString(idx)
	if len(p) > maxPatternLen {
		L.RaiseError("pattern is longer than %d bytes", maxPatternLen)
	}
	return p
}

// relIndex converts a 1-based, possibly negative Lua index to an
// absolute 1-based index over a sequence of length n.
func relIndex(i, n int) int {
	if i >= 0 {
		return i
	}
	if -i > n {
		return 0
	}
	return n + i + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pushCaptures pushes each capture's value: its text, or its 1-based
// position for a position capture.
func pushCaptures(L *lua.LState, src []rune, m *pattern.Match) int {
	for _, c := range m.Captures {
		if c.IsPosition {
			L.Push(lua.LNumber(c.Start + 1))
		} else {
			L.Push(lua.LString(string(src[c.Start:c.End])))
		}
	}
	return len(m.Captures)
}

// expandReplacement substitutes %0..%9 tokens in a string replacement.
func expandReplacement(repl string, groups []string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '%' || i+1 >= len(repl) {
			b.WriteByte(c)
			continue
		}
		i++
		d := repl[i]
		switch {
		case d == '%':
			b.WriteByte('%')
		case d >= '0' && d <= '9':
			idx := int(d - '0')
			if idx < len(groups) {
				b.WriteString(groups[idx])
			} else if idx == 1 && len(groups) == 1 {
				b.WriteString(groups[0])
			}
		default:
			b.WriteByte(d)
		}
	}
	return b.String()
}

// registerTextLib installs the small mw.text helper set.
func (inv *invocation) registerTextLib(L *lua.LState, mw *lua.LTable) {
	lib := L.NewTable()

	L.SetField(lib, "trim", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
		return 1
	}))
	L.SetField(lib, "nowiki", L.NewFunction(func(L *lua.LState) int {
		r := strings.NewReplacer(
			"&", "&amp;", "<", "&lt;", ">", "&gt;",
			"[", "&#91;", "]", "&#93;", "{", "&#123;", "}", "&#125;",
			"|", "&#124;", "'", "&#39;", "=", "&#61;",
		)
		L.Push(lua.LString(r.Replace(L.CheckString(1))))
		return 1
	}))
	L.SetField(lib, "unstrip", L.NewFunction(inv.luaUnstrip))
	L.SetField(lib, "split", L.NewFunction(func(L *lua.LState) int {
		src := pattern.Runes(checkSubject(L, 1))
		pat := checkPattern(L, 2)
		tbl := L.NewTable()
		last := 0
		next := pattern.Gmatch(src, pat)
		n := 0
		for {
			m, err := next()
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			if m == nil {
				break
			}
			if m.End == m.Start && m.Start == last {
				// A zero-width separator at the cursor would loop.
				if m.Start >= len(src) {
					break
				}
				continue
			}
			n++
			tbl.RawSetInt(n, lua.LString(string(src[last:m.Start])))
			last = m.End
		}
		n++
		tbl.RawSetInt(n, lua.LString(string(src[last:])))
		L.Push(tbl)
		return 1
	}))

	L.SetField(mw, "text", lib)
}
