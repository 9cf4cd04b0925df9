package execution

import (
	"slices"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/query"
)

// Locale values with special meaning.
const (
	// AllLocales selects every stored translation as a per-locale mapping.
	AllLocales = "all"
	// DefaultLocale is used when no default locale is configured.
	DefaultLocale = "en_US"
)

// DefaultBatchSize is the number of values an INSERT statement carries
// when no batch size is set.
const DefaultBatchSize = 500

// Context parameterizes compilation: projection, filtering, ordering,
// pagination, localization and expansion. A Context is a snapshot; it is
// never modified once handed to a compiler. Use Merge to derive one
// context from another.
type Context struct {
	Locale        string
	DefaultLocale string
	Columns       []string
	Where         query.Expr
	Order         []Order
	// Limit caps the number of records; zero means no limit.
	Limit int
	// Start is the number of records to skip. Page takes precedence.
	Start int
	// Page is 1-based and requires PageSize or Limit.
	Page       int
	PageSize   int
	Distinct   bool
	DistinctOn []string
	Expand     Tree
	Namespace  string
	// SkipBaseQuery disables the schema base query.
	SkipBaseQuery bool
	DryRun        bool
	// Force allows mutations that would otherwise be refused, such as an
	// unfiltered DELETE.
	Force bool
	// BatchSize bounds the values of a single INSERT statement; zero
	// means DefaultBatchSize.
	BatchSize int

	set option
}

// option is a bitmask of explicitly set options, used by Merge to tell
// an explicit zero from an unset value.
type option uint32

const (
	optLocale option = 1 << iota
	optDefaultLocale
	optColumns
	optWhere
	optOrder
	optLimit
	optStart
	optPage
	optPageSize
	optDistinct
	optDistinctOn
	optExpand
	optNamespace
	optBaseQuery
	optDryRun
	optForce
	optBatchSize
)

// An Option configures a Context.
type Option func(*Context)

// New returns a context with the given options applied.
func New(opts ...Option) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLocale sets the locale.
func WithLocale(locale string) Option {
	return func(c *Context) { c.Locale, c.set = locale, c.set|optLocale }
}

// WithDefaultLocale sets the fallback locale.
func WithDefaultLocale(locale string) Option {
	return func(c *Context) { c.DefaultLocale, c.set = locale, c.set|optDefaultLocale }
}

// WithColumns sets the projected columns.
func WithColumns(columns ...string) Option {
	return func(c *Context) { c.Columns, c.set = columns, c.set|optColumns }
}

// WithWhere sets the filter.
func WithWhere(where query.Expr) Option {
	return func(c *Context) { c.Where, c.set = where, c.set|optWhere }
}

// WithOrder sets the ordering.
func WithOrder(order ...Order) Option {
	return func(c *Context) { c.Order, c.set = order, c.set|optOrder }
}

// WithLimit caps the number of records.
func WithLimit(n int) Option {
	return func(c *Context) { c.Limit, c.set = n, c.set|optLimit }
}

// WithStart skips the first n records.
func WithStart(n int) Option {
	return func(c *Context) { c.Start, c.set = n, c.set|optStart }
}

// WithPage selects a 1-based page of the given size.
func WithPage(page, size int) Option {
	return func(c *Context) {
		c.Page, c.PageSize = page, size
		c.set |= optPage | optPageSize
	}
}

// WithDistinct removes duplicate rows.
func WithDistinct() Option {
	return func(c *Context) { c.Distinct, c.set = true, c.set|optDistinct }
}

// WithDistinctOn keeps one row per distinct value of the columns.
func WithDistinctOn(columns ...string) Option {
	return func(c *Context) { c.DistinctOn, c.set = columns, c.set|optDistinctOn }
}

// WithExpand requests related records, e.g. "group.members", "posts.count".
func WithExpand(paths ...string) Option {
	return func(c *Context) {
		c.Expand = c.Expand.Merge(ParseTree(paths...))
		c.set |= optExpand
	}
}

// WithNamespace sets the default namespace for tables without one.
func WithNamespace(ns string) Option {
	return func(c *Context) { c.Namespace, c.set = ns, c.set|optNamespace }
}

// WithoutBaseQuery disables the schema base query.
func WithoutBaseQuery() Option {
	return func(c *Context) { c.SkipBaseQuery, c.set = true, c.set|optBaseQuery }
}

// WithDryRun compiles statements without executing them.
func WithDryRun() Option {
	return func(c *Context) { c.DryRun, c.set = true, c.set|optDryRun }
}

// WithForce allows unfiltered mutations.
func WithForce() Option {
	return func(c *Context) { c.Force, c.set = true, c.set|optForce }
}

// WithBatchSize sets the number of values per INSERT statement.
func WithBatchSize(n int) Option {
	return func(c *Context) { c.BatchSize, c.set = n, c.set|optBatchSize }
}

// Clone returns a copy of c. Slices are copied; the Where expression is
// shared since expressions are immutable.
func (c *Context) Clone() *Context {
	if c == nil {
		return New()
	}
	cp := *c
	cp.Columns = slices.Clone(c.Columns)
	cp.Order = slices.Clone(c.Order)
	cp.DistinctOn = slices.Clone(c.DistinctOn)
	cp.Expand = c.Expand.Clone()
	return &cp
}

func (c *Context) has(o option) bool { return c.set&o != 0 }

// Merge derives a context from parent and child. Options explicitly set
// on the child win, Where filters are joined with AND, Columns are
// appended without duplicates and Expand trees are merged. Neither input
// is modified.
func Merge(parent, child *Context) *Context {
	switch {
	case parent == nil:
		return child.Clone()
	case child == nil:
		return parent.Clone()
	}
	out := parent.Clone()
	pick := func(o option, zero bool, apply func()) {
		if child.has(o) || !zero {
			apply()
			out.set |= o
		}
	}
	pick(optLocale, child.Locale == "", func() { out.Locale = child.Locale })
	pick(optDefaultLocale, child.DefaultLocale == "", func() { out.DefaultLocale = child.DefaultLocale })
	pick(optOrder, len(child.Order) == 0, func() { out.Order = slices.Clone(child.Order) })
	pick(optLimit, child.Limit == 0, func() { out.Limit = child.Limit })
	pick(optStart, child.Start == 0, func() { out.Start = child.Start })
	pick(optPage, child.Page == 0, func() { out.Page = child.Page })
	pick(optPageSize, child.PageSize == 0, func() { out.PageSize = child.PageSize })
	pick(optDistinct, !child.Distinct, func() { out.Distinct = child.Distinct })
	pick(optDistinctOn, len(child.DistinctOn) == 0, func() { out.DistinctOn = slices.Clone(child.DistinctOn) })
	pick(optNamespace, child.Namespace == "", func() { out.Namespace = child.Namespace })
	pick(optBaseQuery, !child.SkipBaseQuery, func() { out.SkipBaseQuery = child.SkipBaseQuery })
	pick(optDryRun, !child.DryRun, func() { out.DryRun = child.DryRun })
	pick(optForce, !child.Force, func() { out.Force = child.Force })
	pick(optBatchSize, child.BatchSize == 0, func() { out.BatchSize = child.BatchSize })

	if child.Where != nil {
		out.Where = query.And(parent.Where, child.Where)
		out.set |= optWhere
	}
	for _, col := range child.Columns {
		if !slices.Contains(out.Columns, col) {
			out.Columns = append(out.Columns, col)
		}
	}
	if child.has(optColumns) {
		out.set |= optColumns
	}
	if len(child.Expand) > 0 {
		out.Expand = out.Expand.Merge(child.Expand)
		out.set |= optExpand
	}
	return out
}

// Derive returns Merge(c, New(opts...)).
func (c *Context) Derive(opts ...Option) *Context {
	return Merge(c, New(opts...))
}

// CurrentLocale returns the locale, falling back to the default locale.
func (c *Context) CurrentLocale() string {
	if c.Locale != "" {
		return c.Locale
	}
	return c.DefaultLocaleOrBase()
}

// DefaultLocaleOrBase returns the configured default locale or
// DefaultLocale.
func (c *Context) DefaultLocaleOrBase() string {
	if c.DefaultLocale != "" {
		return c.DefaultLocale
	}
	return DefaultLocale
}

// RowLimit returns the effective limit: PageSize when paging, Limit
// otherwise.
func (c *Context) RowLimit() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return c.Limit
}

// Offset returns the number of records to skip.
func (c *Context) Offset() int {
	if c.Page > 0 {
		return (c.Page - 1) * c.RowLimit()
	}
	return c.Start
}

// Batch returns the effective batch size.
func (c *Context) Batch() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// Paginated reports if a limit or offset applies.
func (c *Context) Paginated() bool {
	return c.RowLimit() > 0 || c.Offset() > 0
}

// Validate checks pagination values and locales.
func (c *Context) Validate() error {
	for name, v := range map[string]int{"limit": c.Limit, "start": c.Start, "page": c.Page, "pageSize": c.PageSize, "batchSize": c.BatchSize} {
		if v < 0 {
			return orbql.NewDatabaseError("%s must be a non-negative integer, got %d", name, v)
		}
	}
	if c.Page > 0 && c.RowLimit() == 0 {
		return orbql.NewDatabaseError("page %d requested without a page size", c.Page)
	}
	if c.Locale != "" && c.Locale != AllLocales {
		if _, err := NormalizeLocale(c.Locale); err != nil {
			return err
		}
	}
	if c.DefaultLocale != "" {
		if _, err := NormalizeLocale(c.DefaultLocale); err != nil {
			return err
		}
	}
	return nil
}
