package anchor

import "strings"

// attrBody returns "derive(Accounts)" for "#[derive(Accounts)]".
func attrBody(attr string) string {
	a := strings.TrimSpace(attr)
	a = strings.TrimPrefix(a, "#!")
	a = strings.TrimPrefix(a, "#")
	a = strings.TrimSpace(a)
	a = strings.TrimPrefix(a, "[")
	a = strings.TrimSuffix(a, "]")
	return strings.TrimSpace(a)
}

func attrName(body string) string {
	if i := strings.IndexAny(body, "(= "); i >= 0 {
		body = body[:i]
	}
	if i := strings.LastIndex(body, "::"); i >= 0 {
		body = body[i+2:]
	}
	return body
}

func hasAttr(attrs []string, name string) bool {
	for _, a := range attrs {
		if attrName(attrBody(a)) == name {
			return true
		}
	}
	return false
}

func hasDerive(attrs []string, trait string) bool {
	for _, a := range attrs {
		body := attrBody(a)
		if attrName(body) != "derive" {
			continue
		}
		open, end := strings.Index(body, "("), strings.LastIndex(body, ")")
		if open < 0 || end <= open {
			continue
		}
		for _, t := range splitTopLevel(body[open+1:end], ',') {
			t = strings.TrimSpace(t)
			if i := strings.LastIndex(t, "::"); i >= 0 {
				t = t[i+2:]
			}
			if t == trait {
				return true
			}
		}
	}
	return false
}

// applyAccountAttrs reads #[account(...)] constraints into decl. The Anchor wrapper type
// contributes too: Signer<'info> is a declared signer.
func applyAccountAttrs(decl *AccountDecl, attrs []string) {
	if strings.HasPrefix(compactType(decl.Type), "Signer<") {
		decl.Signer = true
	}
	for _, a := range attrs {
		body := attrBody(a)
		if attrName(body) != "account" {
			continue
		}
		open, end := strings.Index(body, "("), strings.LastIndex(body, ")")
		if open < 0 || end <= open {
			continue
		}
		for _, c := range splitTopLevel(body[open+1:end], ',') {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			decl.Constraints = append(decl.Constraints, c)
			key := c
			if i := strings.IndexAny(key, "=@"); i >= 0 {
				key = key[:i]
			}
			key = strings.TrimSpace(key)
			if i := strings.Index(key, "::"); i >= 0 {
				// token::mint = ..., associated_token::authority = ...
				key = key[:i]
			}
			switch key {
			case "mut":
				decl.Mutable = true
			case "signer":
				decl.Signer = true
			case "init", "init_if_needed":
				decl.Init = true
				decl.Mutable = true
			case "zero":
				decl.Zero = true
				decl.Mutable = true
			case "owner", "address", "token", "associated_token", "mint":
				decl.Owner = true
			case "seeds":
				decl.Seeds = true
			case "bump":
				decl.Bump = true
			}
		}
	}
}

// splitTopLevel splits s on sep outside of (), [], {} and string literals.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	inStr := false
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if rest := s[start:]; strings.TrimSpace(rest) != "" || len(out) > 0 {
		out = append(out, rest)
	}
	return out
}
