package service

import (
	"context"
	"strings"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/validation"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx, uid)
	if err != nil {
		return nil, wrapPersistence("list_customers", err)
	}
	return customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	customer, err := s.repo.GetCustomer(ctx, uid, id)
	if err != nil {
		return nil, wrapPersistence("get_customer", err)
	}
	return customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, input domain.CustomerInput) (*domain.Customer, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	customer := applyCustomerInput(domain.Customer{UserID: uid}, input)
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, wrapPersistence("create_customer", err)
	}
	s.publish(ctx, uid, feed.CollectionCustomers, created.ID, feed.OpCreated)
	return created, nil
}

// UpdateCustomer changes the customer record only. Documents keep the details
// captured when they were saved.
func (s *Service) UpdateCustomer(ctx context.Context, id string, input domain.CustomerInput) (*domain.Customer, error) {
	uid, err := requireUID(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCustomer(ctx, uid, id)
	if err != nil {
		return nil, wrapPersistence("get_customer", err)
	}
	customer := applyCustomerInput(*existing, input)
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return nil, wrapPersistence("update_customer", err)
	}
	s.publish(ctx, uid, feed.CollectionCustomers, updated.ID, feed.OpUpdated)
	return updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	uid, err := requireUID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, uid, id); err != nil {
		return wrapPersistence("delete_customer", err)
	}
	s.publish(ctx, uid, feed.CollectionCustomers, id, feed.OpDeleted)
	return nil
}

func applyCustomerInput(c domain.Customer, input domain.CustomerInput) domain.Customer {
	if input.Name != nil {
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		c.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Address != nil {
		c.Address = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		c.Phone = strings.TrimSpace(*input.Phone)
	}
	return c
}

func validateCustomer(c domain.Customer) error {
	fields := validation.FieldErrors{}
	if c.Name == "" {
		fields["name"] = "Name is required"
	}
	if c.Email != "" && (!strings.Contains(c.Email, "@") || strings.ContainsAny(c.Email, " \t")) {
		fields["email"] = "Email is not valid"
	}
	return validation.Result{Header: fields}.Err()
}
