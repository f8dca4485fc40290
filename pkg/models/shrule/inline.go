package shrule

import (
	"fmt"
	"strconv"
	"strings"
)

type segment struct {
	text   string
	isExpr bool
}

// splitSegments splits "t_order_${order_id % 4}" into literal and ${...} parts.
func splitSegments(expr string) ([]segment, error) {
	var segs []segment
	for len(expr) > 0 {
		open := strings.Index(expr, "${")
		if open < 0 {
			segs = append(segs, segment{text: expr})
			break
		}
		if open > 0 {
			segs = append(segs, segment{text: expr[:open]})
		}
		closing := strings.IndexByte(expr[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("unterminated ${ in %q", expr)
		}
		segs = append(segs, segment{text: strings.TrimSpace(expr[open+2 : open+closing]), isExpr: true})
		expr = expr[open+closing+1:]
	}
	return segs, nil
}

// splitTopLevel splits on commas that are not inside ${...}.
func splitTopLevel(expr string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(expr[start:]))
}

// ExpandInline expands a data node expression into the list of names it
// denotes. Supported forms inside ${}: "a..b" integer ranges and
// "[x, y]" or "x, y" lists. Several expressions can be joined with commas.
//
//	ds_${0..1}.t_order_${0..1} -> ds_0.t_order_0, ds_0.t_order_1, ds_1.t_order_0, ds_1.t_order_1
func ExpandInline(expr string) ([]string, error) {
	var res []string
	for _, part := range splitTopLevel(expr) {
		if part == "" {
			continue
		}
		segs, err := splitSegments(part)
		if err != nil {
			return nil, err
		}
		names := []string{""}
		for _, seg := range segs {
			alts := []string{seg.text}
			if seg.isExpr {
				if alts, err = expandAlternatives(seg.text); err != nil {
					return nil, err
				}
			}
			next := make([]string, 0, len(names)*len(alts))
			for _, prefix := range names {
				for _, alt := range alts {
					next = append(next, prefix+alt)
				}
			}
			names = next
		}
		res = append(res, names...)
	}
	return res, nil
}

func expandAlternatives(body string) ([]string, error) {
	if lo, hi, ok := strings.Cut(body, ".."); ok {
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("bad range %q: %w", body, err)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("bad range %q: %w", body, err)
		}
		if to < from {
			return nil, fmt.Errorf("bad range %q: upper bound below lower bound", body)
		}
		res := make([]string, 0, to-from+1)
		for i := from; i <= to; i++ {
			res = append(res, strconv.Itoa(i))
		}
		return res, nil
	}

	body = strings.TrimSuffix(strings.TrimPrefix(body, "["), "]")
	var res []string
	for _, item := range strings.Split(body, ",") {
		item = strings.Trim(strings.TrimSpace(item), "'\"")
		if item == "" {
			return nil, fmt.Errorf("empty item in %q", body)
		}
		res = append(res, item)
	}
	return res, nil
}

type templatePart struct {
	literal string
	column  string
	mod     int64
}

// template is a compiled sharding expression such as "t_order_${order_id % 4}".
type template struct {
	parts   []templatePart
	columns []string
}

func compileTemplate(expr string) (*template, error) {
	segs, err := splitSegments(expr)
	if err != nil {
		return nil, err
	}
	t := &template{}
	seen := map[string]struct{}{}
	for _, seg := range segs {
		if !seg.isExpr {
			t.parts = append(t.parts, templatePart{literal: seg.text})
			continue
		}
		p := templatePart{}
		col, mod, hasMod := strings.Cut(seg.text, "%")
		p.column = strings.ToLower(strings.TrimSpace(col))
		if p.column == "" {
			return nil, fmt.Errorf("missing column in %q", expr)
		}
		if hasMod {
			n, err := strconv.ParseInt(strings.TrimSpace(mod), 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad modulus in %q", expr)
			}
			p.mod = n
		}
		t.parts = append(t.parts, p)
		if _, ok := seen[p.column]; !ok {
			seen[p.column] = struct{}{}
			t.columns = append(t.columns, p.column)
		}
	}
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("expression %q references no column", expr)
	}
	return t, nil
}

// render evaluates the template for one binding of every column.
func (t *template) render(binding map[string]any) (string, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.column == "" {
			sb.WriteString(p.literal)
			continue
		}
		v := binding[p.column]
		if p.mod == 0 {
			fmt.Fprintf(&sb, "%v", v)
			continue
		}
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		m := n % p.mod
		if m < 0 {
			m += p.mod
		}
		sb.WriteString(strconv.FormatInt(m, 10))
	}
	return sb.String(), nil
}
