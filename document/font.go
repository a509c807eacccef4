// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package document

import (
	_ "embed"
	"unicode"
)

const (
	fontFamily = "DejaVu"
	// fpdf only tracks glyph widths in the basic multilingual plane
	maxFontRune = 0xffff
)

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
)

// Scripts with glyphs in the embedded font. Common covers digits and
// punctuation, Inherited covers combining accents.
var supportedScripts = []*unicode.RangeTable{
	unicode.Latin,
	unicode.Greek,
	unicode.Cyrillic,
	unicode.Common,
	unicode.Inherited,
}

// unsupportedRunes returns the distinct runes of s the renderer cannot draw
func unsupportedRunes(s string) []rune {
	var ret []rune
	seen := make(map[rune]struct{})
	for _, r := range s {
		if r <= maxFontRune && unicode.IsPrint(r) &&
			unicode.IsOneOf(supportedScripts, r) {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		ret = append(ret, r)
	}
	return ret
}
