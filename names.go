// Copyright (c) 2026 The Trapcov Authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

package trapcov

import "strings"

// operatorTokens are the operator spellings containing angle brackets,
// longest first.
var operatorTokens = []string{"<=>", "<<=", ">>=", "->*", "<<", ">>", "<=", ">=", "->", "<", ">"}

// StripTemplates removes template argument lists from a symbol name:
// "ns::max<int>" becomes "ns::max". Operator names unbalance the counts of
// '<' and '>' ("operator<<", "operator->"); the brackets spelling an operator
// are kept literally and never open or close an argument list, so
// "basic_ostream<char>::operator<<" becomes "basic_ostream::operator<<".
// A stray '>' outside any argument list is kept as well.
func StripTemplates(name string) string {
	out := make([]byte, 0, len(name))
	depth := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if depth == 0 && endsWithOperatorKeyword(string(out)) {
			if tok := operatorToken(name[i:]); tok != "" {
				out = append(out, tok...)
				i += len(tok) - 1
				continue
			}
		}
		switch c {
		case '<':
			if depth == 0 {
				// "operator<< <char>" leaves a space before the list
				for len(out) > 0 && out[len(out)-1] == ' ' {
					out = out[:len(out)-1]
				}
			}
			depth++
		case '>':
			if depth == 0 {
				out = append(out, c)
			} else {
				depth--
			}
		default:
			if depth == 0 {
				out = append(out, c)
			}
		}
	}
	return string(out)
}

func endsWithOperatorKeyword(s string) bool {
	if !strings.HasSuffix(s, "operator") {
		return false
	}
	s = strings.TrimSuffix(s, "operator")
	if s == "" {
		return true
	}
	c := s[len(s)-1]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

// operatorToken returns the operator spelling at the start of s. When several
// spellings match, the longest one leaving the remaining angle brackets
// balanced wins: "<<int>" is operator< with an argument list, "<<<char>" is
// operator<< with one.
func operatorToken(s string) string {
	longest := ""
	for _, tok := range operatorTokens {
		if !strings.HasPrefix(s, tok) {
			continue
		}
		if longest == "" {
			longest = tok
		}
		rest := s[len(tok):]
		if strings.Count(rest, "<") == strings.Count(rest, ">") {
			return tok
		}
	}
	return longest
}

// SplitQualifiedName splits "a::b::f" into "a::b" and "f".
func SplitQualifiedName(name string) (scope, last string) {
	i := strings.LastIndex(name, "::")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+2:]
}

// NewFunctionKey builds the reporting key of a function from its qualified
// name and the name of its enclosing class, if any.
func NewFunctionKey(qualifiedName, className string) FunctionKey {
	scope, name := SplitQualifiedName(StripTemplates(qualifiedName))
	key := FunctionKey{Namespace: scope, Name: name}
	if className == "" {
		return key
	}
	_, class := SplitQualifiedName(StripTemplates(className))
	key.Class = class
	switch {
	case scope == class:
		key.Namespace = ""
	case strings.HasSuffix(scope, "::"+class):
		key.Namespace = strings.TrimSuffix(scope, "::"+class)
	}
	return key
}
