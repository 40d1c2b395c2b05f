package catalog

import (
	"context"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
)

// Repository persists catalog master data.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(st *store.Store) *Repository {
	return &Repository{store: st}
}

const productColumns = `id, org_id, name, unit_price, tax_rate, stock_qty, min_stock, created_at, updated_at`

// CreateProduct inserts a product and returns it.
func (r *Repository) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var p Product
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO products (org_id, name, unit_price, tax_rate, min_stock)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+productColumns,
			in.OrgID, in.Name, in.UnitPrice, in.TaxRate, in.MinStock)
		if err := scanProduct(row, &p); err != nil {
			return store.MapError(err)
		}
		tx.Touch(bus.KindProduct)
		return nil
	})
	return p, err
}

// UpdateProduct updates price, tax rate, name and threshold. Stock quantity is
// never written here.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	var p Product
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE products
			SET name = $2, unit_price = $3, tax_rate = $4, min_stock = $5, updated_at = NOW()
			WHERE id = $1 AND org_id = $6
			RETURNING `+productColumns,
			id, in.Name, in.UnitPrice, in.TaxRate, in.MinStock, in.OrgID)
		if err := scanProduct(row, &p); err != nil {
			return store.MapError(err)
		}
		tx.Touch(bus.KindProduct)
		return nil
	})
	return p, err
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	row := r.store.Pool().QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err := scanProduct(row, &p); err != nil {
		return Product{}, store.MapError(err)
	}
	return p, nil
}

// ListProducts returns products of an organization ordered by name.
func (r *Repository) ListProducts(ctx context.Context, orgID int64) ([]Product, error) {
	rows, err := r.store.Pool().Query(ctx, `SELECT `+productColumns+` FROM products WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, store.MapError(err)
		}
		products = append(products, p)
	}
	return products, store.MapError(rows.Err())
}

// CreateCustomer inserts a customer.
func (r *Repository) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	var c Customer
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO customers (org_id, name, tax_id, address)
			VALUES ($1, $2, $3, $4)
			RETURNING id, org_id, name, tax_id, address, created_at`,
			in.OrgID, in.Name, in.TaxID, in.Address)
		if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.TaxID, &c.Address, &c.CreatedAt); err != nil {
			return store.MapError(err)
		}
		tx.Touch(bus.KindCustomer)
		return nil
	})
	return c, err
}

// GetCustomer loads a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	row := r.store.Pool().QueryRow(ctx, `SELECT id, org_id, name, tax_id, address, created_at FROM customers WHERE id = $1`, id)
	if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.TaxID, &c.Address, &c.CreatedAt); err != nil {
		return Customer{}, store.MapError(err)
	}
	return c, nil
}

// ListCustomers returns customers of an organization ordered by name.
func (r *Repository) ListCustomers(ctx context.Context, orgID int64) ([]Customer, error) {
	rows, err := r.store.Pool().Query(ctx, `SELECT id, org_id, name, tax_id, address, created_at FROM customers WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.TaxID, &c.Address, &c.CreatedAt); err != nil {
			return nil, store.MapError(err)
		}
		customers = append(customers, c)
	}
	return customers, store.MapError(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *Product) error {
	return row.Scan(&p.ID, &p.OrgID, &p.Name, &p.UnitPrice, &p.TaxRate, &p.StockQty, &p.MinStock, &p.CreatedAt, &p.UpdatedAt)
}
