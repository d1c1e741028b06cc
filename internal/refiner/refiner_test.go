package refiner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/physgen/internal/llm"
	"github.com/tordrt/physgen/internal/llm/llmtest"
	"github.com/tordrt/physgen/internal/schema"
	"go.uber.org/zap/zaptest"
)

func boolPtr(b bool) *bool { return &b }

func commerceSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := &schema.Document{
		FileID: "commerce",
		Metadata: schema.Metadata{Tables: schema.TableList{
			{Name: "orders", Columns: []schema.ColumnMetadata{
				{ColumnName: "order_id", DataType: "INTEGER", IsPrimaryKey: true},
				{ColumnName: "customer_id", DataType: "BIGINT", IsForeignKey: true, ReferencesTable: "customers", ReferencesColumn: "id"},
				{ColumnName: "order_date", DataType: "DATE", Nullable: boolPtr(true)},
				{ColumnName: "total", DataType: "DECIMAL"},
			}},
			{Name: "customers", Columns: []schema.ColumnMetadata{
				{ColumnName: "id", DataType: "INT", IsPrimaryKey: true},
				{ColumnName: "email", DataType: "STRING", Nullable: boolPtr(true)},
				{ColumnName: "nickname", DataType: "STRING", Nullable: boolPtr(true), DefaultValue: "anon"},
				{ColumnName: "created_at", DataType: "DATE"},
			}},
			{Name: "order_items", Columns: []schema.ColumnMetadata{
				{ColumnName: "id", IsPrimaryKey: true},
				{ColumnName: "order_id", IsForeignKey: true, IsUnique: true, ReferencesTable: "orders", ReferencesColumn: "order_id"},
				{ColumnName: "quantity", DataType: "VARCHAR"},
			}},
		}},
	}
	s, err := schema.Build(doc)
	require.NoError(t, err)
	return s
}

func TestHeuristics(t *testing.T) {
	s := commerceSchema(t)
	res := New(Options{Logger: zaptest.NewLogger(t)}).Refine(context.Background(), s)

	assert.False(t, res.Enhanced)
	assert.NoError(t, res.LLMErr)

	orders := s.Table("orders")
	pk := orders.Column("order_id")
	assert.Equal(t, "INT", pk.ExactType)
	assert.True(t, pk.AutoIncrement)
	assert.False(t, pk.Nullable)

	fk := orders.Column("customer_id")
	assert.Equal(t, "INT", fk.ExactType, "follows customers.id")
	assert.False(t, fk.AutoIncrement)
	assert.False(t, fk.Nullable)

	orderDate := orders.Column("order_date")
	assert.False(t, orderDate.Nullable, "order_date is required")
	require.NotNil(t, orderDate.Default)
	assert.Equal(t, CurrentDate, *orderDate.Default)

	total := orders.Column("total")
	assert.Equal(t, "DECIMAL(18,2)", total.ExactType)
	assert.Equal(t, "`total` >= 0", total.Check)

	customers := s.Table("customers")
	email := customers.Column("email")
	assert.True(t, email.Unique)
	assert.False(t, email.Nullable)
	assert.Equal(t, "VARCHAR(255)", email.ExactType)

	nickname := customers.Column("nickname")
	assert.True(t, nickname.Nullable)
	require.NotNil(t, nickname.Default)
	assert.Equal(t, "'anon'", *nickname.Default)

	createdAt := customers.Column("created_at")
	assert.Equal(t, "TIMESTAMP", createdAt.ExactType)
	assert.Equal(t, CurrentTimestamp, *createdAt.Default)
	assert.False(t, createdAt.System)

	items := s.Table("order_items")
	assert.False(t, items.Column("order_id").Unique, "foreign keys are never unique")
	quantity := items.Column("quantity")
	assert.Equal(t, "INT", quantity.ExactType)
	assert.Equal(t, "`quantity` > 0", quantity.Check)
	assert.False(t, quantity.Nullable)
}

func TestAuditColumnsAppended(t *testing.T) {
	s := commerceSchema(t)
	New(Options{}).Refine(context.Background(), s)

	for _, table := range s.Tables() {
		n := len(table.Columns)
		require.GreaterOrEqual(t, n, 2)
		updated := table.Columns[n-1]
		assert.Equal(t, schema.AuditUpdatedAt, updated.CleanName)
		assert.Equal(t, CurrentTimestampOnUpdate, *updated.Default)
		assert.Equal(t, "TIMESTAMP", updated.ExactType)
		assert.False(t, updated.Nullable)
		assert.True(t, updated.System)
	}

	orders := s.Table("orders")
	assert.Equal(t, schema.AuditCreatedAt, orders.Columns[4].CleanName)
	assert.Len(t, s.Table("customers").Columns, 5, "existing created_at is not duplicated")
}

func TestRequiredNotNullOverride(t *testing.T) {
	s := commerceSchema(t)
	New(Options{RequiredNotNull: []string{"nickname"}}).Refine(context.Background(), s)

	customers := s.Table("customers")
	assert.False(t, customers.Column("nickname").Nullable)
	assert.True(t, customers.Column("email").Nullable)
	assert.True(t, customers.Column("email").Unique)
}

func TestCompositePrimaryKeyIsNotAutoIncrement(t *testing.T) {
	doc := &schema.Document{FileID: "f", Metadata: schema.Metadata{Tables: schema.TableList{
		{Name: "tags", Columns: []schema.ColumnMetadata{{ColumnName: "id", IsPrimaryKey: true}}},
		{Name: "post_tags", Columns: []schema.ColumnMetadata{
			{ColumnName: "post_id", IsPrimaryKey: true},
			{ColumnName: "tag_id", IsPrimaryKey: true, IsForeignKey: true, ReferencesTable: "tags", ReferencesColumn: "id"},
		}},
	}}}
	s, err := schema.Build(doc)
	require.NoError(t, err)

	New(Options{}).Refine(context.Background(), s)

	pt := s.Table("post_tags")
	assert.False(t, pt.Column("post_id").AutoIncrement)
	assert.False(t, pt.Column("tag_id").AutoIncrement)
	assert.Equal(t, "INT", pt.Column("tag_id").ExactType)
}

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		value string
		typ   string
		want  string
		ok    bool
	}{
		{value: "current_timestamp", typ: "TIMESTAMP", want: "CURRENT_TIMESTAMP", ok: true},
		{value: "CURRENT_TIMESTAMP  on update CURRENT_TIMESTAMP", typ: "DATETIME", want: CurrentTimestampOnUpdate, ok: true},
		{value: "CURRENT_TIMESTAMP", typ: "DATE", ok: false},
		{value: "CURRENT_DATE", typ: "DATE", want: "CURRENT_DATE", ok: true},
		{value: "true", typ: "BOOLEAN", want: "TRUE", ok: true},
		{value: "FALSE", typ: "VARCHAR(10)", ok: false},
		{value: "42", typ: "INT", want: "42", ok: true},
		{value: "4.2", typ: "INT", ok: false},
		{value: "-0.5", typ: "DECIMAL(10,2)", want: "-0.5", ok: true},
		{value: "1", typ: "BOOLEAN", want: "1", ok: true},
		{value: "'it''s'", typ: "VARCHAR(255)", want: "'it''s'", ok: true},
		{value: "'2024-01-01'", typ: "DATE", want: "'2024-01-01'", ok: true},
		{value: "'x'", typ: "INT", ok: false},
		{value: "NOW()", typ: "TIMESTAMP", ok: false},
		{value: "'a'; DROP TABLE x", typ: "VARCHAR(255)", ok: false},
		{value: "", typ: "INT", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.value+"/"+tt.typ, func(t *testing.T) {
			got, ok := NormalizeDefault(tt.value, tt.typ)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestInputDefault(t *testing.T) {
	assert.Equal(t, "'O''Brien'", *inputDefault("O'Brien", "VARCHAR(255)"))
	assert.Equal(t, "7", *inputDefault("7", "INT"))
	assert.Nil(t, inputDefault("seven", "INT"))
	assert.Nil(t, inputDefault("   ", "VARCHAR(255)"))
}

func TestValidateCheck(t *testing.T) {
	valid := []string{"`price` > 0", "status IN ('a', 'b')", "(a > 0) AND (b < 10)", "name <> ')'"}
	for _, expr := range valid {
		assert.NoError(t, ValidateCheck(expr), expr)
	}

	invalid := []string{"CHECK (price > 0)", "check(price>0)", "price > 0; DROP TABLE x", "a > (SELECT 1)", "(a > 0", "a > 0)", "a -- comment", "name = 'open"}
	for _, expr := range invalid {
		assert.Error(t, ValidateCheck(expr), expr)
	}
}

func productsSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := &schema.Document{FileID: "shop", Metadata: schema.Metadata{Tables: schema.TableList{
		{Name: "products", Columns: []schema.ColumnMetadata{
			{ColumnName: "id", DataType: "INT", IsPrimaryKey: true},
			{ColumnName: "name", DataType: "STRING"},
			{ColumnName: "price", DataType: "DECIMAL"},
			{ColumnName: "status", DataType: "STRING", Nullable: boolPtr(true)},
			{ColumnName: "code", DataType: "STRING", Nullable: boolPtr(true)},
		}},
		{Name: "reviews", Columns: []schema.ColumnMetadata{
			{ColumnName: "id", DataType: "INT", IsPrimaryKey: true},
			{ColumnName: "product_id", IsForeignKey: true, ReferencesTable: "products", ReferencesColumn: "id"},
			{ColumnName: "quantity", DataType: "INT"},
		}},
	}}}
	s, err := schema.Build(doc)
	require.NoError(t, err)
	return s
}

func findRejection(rejections []Rejection, column, field string) *Rejection {
	for i := range rejections {
		if rejections[i].Column == column && rejections[i].Field == field {
			return &rejections[i]
		}
	}
	return nil
}

func TestLLMMerge(t *testing.T) {
	s := productsSchema(t)
	prompter := &llmtest.Static{Response: map[string]any{"tables": map[string]any{
		"products": map[string]any{
			"status":     map[string]any{"exactType": "ENUM('a','b')", "nullable": false, "default": "'active'"},
			"code":       map[string]any{"exactType": "varchar(32)", "unique": true, "cleanName": "sku"},
			"price":      map[string]any{"exactType": "DECIMAL(10,2)", "checkConstraint": "price > 1", "nullable": true},
			"name":       map[string]any{"checkConstraint": "CHECK (name <> '')"},
			"id":         map[string]any{"autoIncrement": true, "exactType": "VARCHAR(10)"},
			"created_at": map[string]any{"default": "NULL"},
			"ghost":      map[string]any{"nullable": false},
		},
		"Reviews": map[string]any{
			"product_id": map[string]any{"unique": true, "nullable": true, "exactType": "BIGINT"},
			"quantity":   map[string]any{"cleanName": "qty"},
		},
	}}}

	res := New(Options{Prompter: prompter, Logger: zaptest.NewLogger(t)}).Refine(context.Background(), s)

	require.NoError(t, res.LLMErr)
	assert.True(t, res.Enhanced)
	assert.Len(t, prompter.Calls(), 1)

	products := s.Table("products")

	status := products.Column("status")
	assert.Equal(t, "VARCHAR(255)", status.ExactType, "ENUM is not an allowed family")
	assert.False(t, status.Nullable)
	assert.Equal(t, "'active'", *status.Default)
	assert.True(t, status.Enhanced)
	assert.NotNil(t, findRejection(res.Rejections, "status", FieldExactType))

	code := products.Column("code")
	assert.Equal(t, "VARCHAR(32)", code.ExactType)
	assert.True(t, code.Unique)
	assert.Equal(t, "sku", code.CleanName)
	assert.Equal(t, "code", code.Name)
	assert.Same(t, code, products.Column("sku"))

	price := products.Column("price")
	assert.Equal(t, "DECIMAL(10,2)", price.ExactType)
	assert.Equal(t, "`price` >= 0", price.Check, "existing check is kept")
	assert.False(t, price.Nullable)
	assert.NotNil(t, findRejection(res.Rejections, "price", FieldCheck))
	assert.NotNil(t, findRejection(res.Rejections, "price", FieldNullable))

	assert.Empty(t, products.Column("name").Check)
	assert.NotNil(t, findRejection(res.Rejections, "name", FieldCheck))

	id := products.Column("id")
	assert.Equal(t, "INT", id.ExactType)
	assert.True(t, id.AutoIncrement)
	assert.False(t, id.Enhanced)

	assert.Equal(t, CurrentTimestamp, *products.Column("created_at").Default)
	assert.NotNil(t, findRejection(res.Rejections, "created_at", FieldDefault))
	assert.NotNil(t, findRejection(res.Rejections, "ghost", ""))

	reviews := s.Table("reviews")
	fk := reviews.Column("product_id")
	assert.False(t, fk.Unique)
	assert.False(t, fk.Nullable)
	assert.Equal(t, "INT", fk.ExactType)
	assert.NotNil(t, findRejection(res.Rejections, "product_id", FieldExactType))

	qty := reviews.Column("quantity")
	assert.Equal(t, "qty", qty.CleanName)
	assert.Equal(t, "`qty` > 0", qty.Check)

	assert.Equal(t, 7, res.Accepted)
}

func TestLLMWidenedKeyCarriesToForeignKeys(t *testing.T) {
	s := productsSchema(t)
	prompter := &llmtest.Static{Response: map[string]any{
		"products": map[string]any{
			"id": map[string]any{"exactType": "BIGINT"},
		},
	}}

	res := New(Options{Prompter: prompter, Logger: zaptest.NewLogger(t)}).Refine(context.Background(), s)

	require.NoError(t, res.LLMErr)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, "BIGINT", s.Table("products").Column("id").ExactType)
	assert.Equal(t, "BIGINT", s.Table("reviews").Column("product_id").ExactType)
	assert.Equal(t, "INT", s.Table("reviews").Column("id").ExactType)
}

func TestLLMForeignKeyTypeMustMatchReference(t *testing.T) {
	s := productsSchema(t)
	prompter := &llmtest.Static{Response: map[string]any{
		"reviews": map[string]any{
			"product_id": map[string]any{"exactType": "SMALLINT"},
		},
	}}

	res := New(Options{Prompter: prompter}).Refine(context.Background(), s)

	assert.False(t, res.Enhanced)
	assert.Equal(t, "INT", s.Table("reviews").Column("product_id").ExactType)
	rejection := findRejection(res.Rejections, "product_id", FieldExactType)
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Reason, "must match referenced column type INT")
}

func TestLLMDefaultOnAutoIncrementKey(t *testing.T) {
	s := productsSchema(t)
	prompter := &llmtest.Static{Response: map[string]any{
		"products": map[string]any{
			"id": map[string]any{"default": "0"},
		},
		"reviews": map[string]any{
			"id":       map[string]any{"default": "7", "autoIncrement": true},
			"quantity": map[string]any{"default": "1", "autoIncrement": true},
		},
	}}

	res := New(Options{Prompter: prompter}).Refine(context.Background(), s)

	id := s.Table("products").Column("id")
	assert.True(t, id.AutoIncrement)
	assert.Nil(t, id.Default)
	assert.NotNil(t, findRejection(res.Rejections, "id", FieldDefault))

	reviewID := s.Table("reviews").Column("id")
	assert.True(t, reviewID.AutoIncrement)
	assert.Nil(t, reviewID.Default)

	qty := s.Table("reviews").Column("quantity")
	assert.False(t, qty.AutoIncrement)
	require.NotNil(t, qty.Default)
	assert.Equal(t, "1", *qty.Default)
	assert.NotNil(t, findRejection(res.Rejections, "quantity", FieldAutoIncrement))
	assert.Equal(t, 1, res.Accepted)
}

func TestLLMRenameCollision(t *testing.T) {
	s := productsSchema(t)
	prompter := &llmtest.Static{Response: map[string]any{
		"products": map[string]any{
			"code":   map[string]any{"cleanName": "name"},
			"status": map[string]any{"cleanName": "1bad"},
		},
	}}

	res := New(Options{Prompter: prompter}).Refine(context.Background(), s)

	products := s.Table("products")
	assert.Equal(t, "code", products.Column("code").CleanName)
	assert.Equal(t, "status", products.Column("status").CleanName)
	assert.False(t, res.Enhanced)
	assert.Len(t, res.Rejections, 2)
}

func TestLLMFailureKeepsHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		prompter *llmtest.Static
		timeout  time.Duration
		wantErr  error
	}{
		{name: "transport error", prompter: &llmtest.Static{Err: errors.New("connection refused")}},
		{name: "malformed json", prompter: &llmtest.Static{Raw: "not json"}, wantErr: llm.ErrMalformedResponse},
		{name: "timeout", prompter: &llmtest.Static{Block: true}, timeout: 20 * time.Millisecond, wantErr: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := productsSchema(t)
			res := New(Options{Prompter: tt.prompter, Timeout: tt.timeout, Logger: zaptest.NewLogger(t)}).
				Refine(context.Background(), s)

			require.Error(t, res.LLMErr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.LLMErr, tt.wantErr)
			}
			assert.False(t, res.Enhanced)

			products := s.Table("products")
			assert.Equal(t, "INT", products.Column("id").ExactType)
			assert.Equal(t, "`price` >= 0", products.Column("price").Check)
			assert.Len(t, products.Columns, 7)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	s := productsSchema(t)
	New(Options{}).Refine(context.Background(), s)

	prompt := BuildPrompt(s)
	assert.Contains(t, prompt, "TABLE products\n")
	assert.Contains(t, prompt, "  id INT current=INT [PK,NOT NULL]\n")
	assert.Contains(t, prompt, "  product_id - current=INT [FK,NOT NULL] -> products.id\n")
	assert.Contains(t, prompt, "  updated_at TIMESTAMP current=TIMESTAMP [NOT NULL,SYSTEM]\n")
	assert.Contains(t, prompt, `"checkConstraint"`)
}
