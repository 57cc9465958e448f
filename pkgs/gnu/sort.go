// Package gnu orders version strings like GNU "sort -V".
package gnu

// Compare orders two version strings the way "sort -V" does (gnulib's
// verrevcmp). Runs of digits compare by numeric value, other characters by
// rank: '~' sorts before the end of the string, letters before punctuation.
// It returns -1 if a < b, 0 if a == b and 1 if a > b.
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			if ra, rb := rank(byteAt(a, i)), rank(byteAt(b, j)); ra != rb {
				return sign(ra - rb)
			}
			i++
			j++
		}

		i, j = skipZeros(a, i), skipZeros(b, j)
		diff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if diff == 0 {
				diff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		// The longer run of significant digits is the larger number.
		switch {
		case i < len(a) && isDigit(a[i]):
			return 1
		case j < len(b) && isDigit(b[j]):
			return -1
		case diff != 0:
			return sign(diff)
		}
	}
	return 0
}

// rank is the sort weight of a non-digit position. Digits and the end of
// the string weigh 0.
func rank(c byte) int {
	switch {
	case c == 0 || isDigit(c):
		return 0
	case c == '~':
		return -1
	case isAlpha(c):
		return int(c)
	}
	return int(c) + 256
}

func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func skipZeros(s string, i int) int {
	for i < len(s) && s[i] == '0' {
		i++
	}
	return i
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isAlpha(c byte) bool { return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' }
