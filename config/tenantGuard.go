package config

import (
	"context"
	"reflect"
	"strings"

	"github.com/mmdatafocus/bankrec_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TenantGuardPlugin scopes queries, updates and deletes to the request's business_id
// whenever the model has a business_id column, and stamps business_id on inserts that left it empty.
//
// Raw SQL is not covered; raw queries must filter business_id themselves.
// Bypass is explicit via appctx.ContextKeySkipTenantScope / ContextKeyIsAdmin.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantStampCallback)
}

func tenantGuardCallback(db *gorm.DB) {
	businessID, ok := tenantFor(db)
	if !ok {
		return
	}
	// Don't duplicate an explicit tenant filter.
	if whereHasBusinessID(db.Statement.Clauses["WHERE"]) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "business_id"},
				Value:  businessID,
			},
		},
	})
}

func tenantStampCallback(db *gorm.DB) {
	businessID, ok := tenantFor(db)
	if !ok {
		return
	}
	field := db.Statement.Schema.LookUpField("business_id")
	if field == nil {
		return
	}
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			stampBusinessId(db, field, reflect.Indirect(rv.Index(i)), businessID)
		}
	case reflect.Struct:
		stampBusinessId(db, field, rv, businessID)
	}
}

func stampBusinessId(db *gorm.DB, field *schema.Field, rv reflect.Value, businessID string) {
	if _, zero := field.ValueOf(db.Statement.Context, rv); zero {
		if err := field.Set(db.Statement.Context, rv, businessID); err != nil {
			db.AddError(err)
		}
	}
}

// tenantFor returns the business id to enforce for the current statement, if any.
func tenantFor(db *gorm.DB) (string, bool) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil {
		return "", false
	}
	ctx := db.Statement.Context
	if shouldBypassTenantScope(ctx) {
		return "", false
	}
	businessID := businessIdFromContext(ctx)
	if businessID == "" || db.Statement.Schema == nil {
		return "", false
	}
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "business_id") {
			return businessID, true
		}
	}
	return "", false
}

func businessIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyBusinessId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasBusinessID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBusinessID(e) {
			return true
		}
	}
	return false
}

func exprHasBusinessID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBusinessID(v.Column)
	case clause.Neq:
		return colIsBusinessID(v.Column)
	case clause.IN:
		return colIsBusinessID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	default:
		return false
	}
}

func colIsBusinessID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	default:
		return false
	}
}
