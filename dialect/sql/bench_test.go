package sql

import (
	"testing"

	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

func BenchmarkCompileWhere(b *testing.B) {
	expr := query.And(
		query.C("active").Is(true),
		query.Or(query.C("name").Contains("an"), query.C("email").Endswith("@example.com")),
		query.C("age").Between(18, 65),
	)
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			c, reg := testCompiler(b, d)
			user := lookup(b, reg, "User")
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.CompileWhere(user, expr, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSelect_Simple(b *testing.B) {
	ctx := execution.New(execution.WithColumns("name", "email"), execution.WithLimit(10))
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			c, reg := testCompiler(b, d)
			user := lookup(b, reg, "User")
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Select(user, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSelect_Translated(b *testing.B) {
	ctx := execution.New(
		execution.WithLocale("fr"),
		execution.WithWhere(query.C("title").Contains("chef")),
		execution.WithOrder(execution.Asc("title")),
		execution.WithPage(2, 20),
	)
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			c, reg := testCompiler(b, d)
			employee := lookup(b, reg, "Employee")
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Select(employee, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSelect_Expanded(b *testing.B) {
	ctx := execution.New(execution.WithExpand("group", "roles.count", "roles.first"), execution.WithLimit(10))
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			c, reg := testCompiler(b, d)
			user := lookup(b, reg, "User")
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Select(user, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkInsert(b *testing.B) {
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			c, reg := testCompiler(b, d)
			employee := lookup(b, reg, "Employee")
			records := make([]schema.Record, 100)
			for i := range records {
				records[i] = schema.NewValues(employee, map[string]any{
					"name":  "a8m",
					"email": "a8m@example.com",
					"badge": "b",
					"title": "engineer",
				})
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Insert(employee, records, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRender(b *testing.B) {
	f := Join(" ",
		Raw("SELECT"), Comma(Ident("users", "id"), Ident("users", "name")),
		Raw("FROM"), Ident("users"),
		Raw("WHERE"), Join(" AND ",
			Join(" ", Ident("users", "age"), Raw(">"), Param("age_1", 18)),
			Join(" ", Ident("users", "name"), Raw("="), Param("name_2", "a8m")),
		),
	)
	for _, d := range dialect.Names {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Render(d, f)
			}
		})
	}
}
