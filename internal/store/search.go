package store

import (
	"strings"
	"unicode/utf8"
)

// SearchMessages finds messages whose body contains query, newest first.
// peer narrows the search to one conversation when set.
func (db *DB) SearchMessages(query string, peer string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + messageCols + ` FROM messages WHERE body LIKE ? ESCAPE '\'`
	args := []any{likePattern(query)}
	if peer != "" {
		q += " AND peer = ?"
		args = append(args, peer)
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := scanMessage(rows, &r.Message); err != nil {
			return nil, err
		}
		r.Snippet = snippet(r.Message.Body, query, 32)
		results = append(results, r)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// snippet marks the first match with << >> and keeps about width runes of
// context on each side.
func snippet(body, query string, width int) string {
	if query == "" {
		return body
	}
	idx := strings.Index(body, query)
	if lower := strings.ToLower(body); len(lower) == len(body) {
		idx = strings.Index(lower, strings.ToLower(query))
	}
	if idx < 0 {
		return body
	}
	end := idx + len(query)
	start := idx
	for n := 0; start > 0 && n < width; n++ {
		_, size := utf8.DecodeLastRuneInString(body[:start])
		start -= size
	}
	stop := end
	for n := 0; stop < len(body) && n < width; n++ {
		_, size := utf8.DecodeRuneInString(body[stop:])
		stop += size
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(body[start:idx])
	b.WriteString("<<")
	b.WriteString(body[idx:end])
	b.WriteString(">>")
	b.WriteString(body[end:stop])
	if stop < len(body) {
		b.WriteString("...")
	}
	return b.String()
}
