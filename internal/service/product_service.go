package service

import (
	"context"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/apierror"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductService is the thin catalog surface. Stock numbers returned here
// are the projection maintained by the batch ledger, never authoritative.
type ProductService interface {
	CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error)
	ListProducts(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error)
}

type productService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) ProductService {
	return &productService{repo: repo}
}

func (s *productService) CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if req.SellingPrice.LessThanOrEqual(decimal.Zero) {
		return nil, apierror.Validationf("selling_price must be positive")
	}
	p := &model.Product{
		SKU:          req.SKU,
		Name:         req.Name,
		SellingPrice: req.SellingPrice,
		IsTaxable:    req.IsTaxable,
		Active:       true,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("product %s", id)
	}
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) ListProducts(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ProductResponse, len(products))
	for i := range products {
		items[i] = productToResponse(&products[i])
	}
	return &dto.ProductListResponse{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func productToResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:                p.ID.String(),
		SKU:               p.SKU,
		Name:              p.Name,
		SellingPrice:      p.SellingPrice,
		IsTaxable:         p.IsTaxable,
		TotalStock:        p.TotalStock,
		CostPrice:         p.CostPrice,
		OldestBatchExpiry: formatDatePtr(p.OldestBatchExpiry),
		NewestBatchExpiry: formatDatePtr(p.NewestBatchExpiry),
		ExpiryAlert:       p.ExpiryAlert,
	}
}
