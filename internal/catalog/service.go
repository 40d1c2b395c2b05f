package catalog

import "context"

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, orgID int64) ([]Product, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, orgID int64) ([]Customer, error)
}

// Service coordinates catalog operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, in)
}

// UpdateProduct validates and applies master data changes.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	return s.repo.UpdateProduct(ctx, id, in)
}

// GetProduct loads one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists an organization's products.
func (s *Service) ListProducts(ctx context.Context, orgID int64) ([]Product, error) {
	return s.repo.ListProducts(ctx, orgID)
}

// CreateCustomer validates and stores a new customer.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	if err := in.Validate(); err != nil {
		return Customer{}, err
	}
	return s.repo.CreateCustomer(ctx, in)
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers lists an organization's customers.
func (s *Service) ListCustomers(ctx context.Context, orgID int64) ([]Customer, error) {
	return s.repo.ListCustomers(ctx, orgID)
}
