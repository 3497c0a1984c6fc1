package repository

import "strings"

// assignments collects the SET list of a partial update.  Column names are
// always string constants chosen by repository code; only values come from
// callers and they are bound as parameters.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, v any) {
	a.cols = append(a.cols, col+" = ?")
	a.args = append(a.args, v)
}

func (a *assignments) empty() bool { return len(a.cols) == 0 }

func (a *assignments) sql() string { return strings.Join(a.cols, ", ") }

// setIf adds col when the patch field is present.
func setIf[T any](a *assignments, col string, v *T) {
	if v != nil {
		a.set(col, *v)
	}
}

// conditions collects the WHERE list of a filtered query.
type conditions struct {
	where []string
	args  []any
}

func (c *conditions) add(expr string, args ...any) {
	c.where = append(c.where, expr)
	c.args = append(c.args, args...)
}

// contains adds a case-insensitive substring match on col.  Both drivers
// fold with a Unicode-aware LOWER (see database.OpenSQLite).
func (c *conditions) contains(col, needle string) {
	if needle == "" {
		return
	}
	c.add("LOWER("+col+") LIKE ?", "%"+escapeLike(strings.ToLower(needle))+"%")
}

// upperContains matches a substring of a column stored upper-cased by Go,
// such as address.city.
func (c *conditions) upperContains(col, needle string) {
	if needle == "" {
		return
	}
	c.add(col+" LIKE ?", "%"+escapeLike(strings.ToUpper(needle))+"%")
}

func (c *conditions) sql() string {
	if len(c.where) == 0 {
		return "1=1"
	}
	return strings.Join(c.where, " AND ")
}

// escapeLike drops LIKE wildcards typed by users.  The two drivers disagree
// on the default escape character, so wildcards are removed, not escaped.
func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
