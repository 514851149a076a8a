package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/dto"
	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
)

type DashboardService struct {
	productRepo      repository.ProductRepository
	orderRepo        repository.OrderRepository
	userRepo         repository.UserRepository
	notificationRepo repository.NotificationRepository
}

func NewDashboardService(productRepo repository.ProductRepository, orderRepo repository.OrderRepository, userRepo repository.UserRepository, notificationRepo repository.NotificationRepository) *DashboardService {
	return &DashboardService{
		productRepo:      productRepo,
		orderRepo:        orderRepo,
		userRepo:         userRepo,
		notificationRepo: notificationRepo,
	}
}

func (s *DashboardService) Stats(ctx context.Context) (*dto.DashboardResponse, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	newOrders, err := s.orderRepo.CountByStatus(ctx, model.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("count new orders: %w", err)
	}
	customers, err := s.userRepo.CountByRole(ctx, model.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}
	return &dto.DashboardResponse{
		TotalProducts:  len(products),
		NewOrders:      newOrders,
		TotalCustomers: customers,
	}, nil
}

func (s *DashboardService) Notifications(ctx context.Context) ([]model.Notification, error) {
	return s.notificationRepo.List(ctx)
}

func (s *DashboardService) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	return s.notificationRepo.MarkRead(ctx, id)
}
