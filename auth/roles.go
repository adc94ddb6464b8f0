package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role codes shipped with the default catalog
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
)

// Permission codes shipped with the default catalog
const (
	PermUsersRead       = "USERS_READ"
	PermUsersWrite      = "USERS_WRITE"
	PermRolesRead       = "ROLES_READ"
	PermRolesWrite      = "ROLES_WRITE"
	PermProductsRead    = "PRODUCTS_READ"
	PermProductsWrite   = "PRODUCTS_WRITE"
	PermWarehousesRead  = "WAREHOUSES_READ"
	PermWarehousesWrite = "WAREHOUSES_WRITE"
	PermInventoryRead   = "INVENTORY_READ"
	PermInventoryWrite  = "INVENTORY_WRITE"
	PermOrdersRead      = "ORDERS_READ"
	PermOrdersWrite     = "ORDERS_WRITE"
	PermShipmentsRead   = "SHIPMENTS_READ"
	PermShipmentsWrite  = "SHIPMENTS_WRITE"
)

// PermissionDefinition describes a seeded permission
type PermissionDefinition struct {
	Code string
	Name string
}

// RoleDefinition describes a seeded role and its grants
type RoleDefinition struct {
	Code        string
	Name        string
	Description string
	Permissions []string
}

// Catalog is the RBAC seed applied by Roles.EnsureCatalog
type Catalog struct {
	Permissions []PermissionDefinition
	Roles       []RoleDefinition
}

// Validate checks that every grant references a declared permission
func (c Catalog) Validate() error {
	declared := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		if strings.TrimSpace(p.Code) == "" {
			return fmt.Errorf("catalog: permission with empty code")
		}
		declared[p.Code] = struct{}{}
	}
	for _, r := range c.Roles {
		if strings.TrimSpace(r.Code) == "" {
			return fmt.Errorf("catalog: role with empty code")
		}
		for _, code := range r.Permissions {
			if _, ok := declared[code]; !ok {
				return fmt.Errorf("catalog: role %s references unknown permission %s", r.Code, code)
			}
		}
	}
	return nil
}

// DefaultCatalog returns the warehouse roles and permissions
func DefaultCatalog() Catalog {
	perms := []PermissionDefinition{
		{PermUsersRead, "Read users"},
		{PermUsersWrite, "Manage users"},
		{PermRolesRead, "Read roles"},
		{PermRolesWrite, "Manage roles"},
		{PermProductsRead, "Read products"},
		{PermProductsWrite, "Manage products"},
		{PermWarehousesRead, "Read warehouses"},
		{PermWarehousesWrite, "Manage warehouses"},
		{PermInventoryRead, "Read inventory"},
		{PermInventoryWrite, "Manage inventory"},
		{PermOrdersRead, "Read orders"},
		{PermOrdersWrite, "Manage orders"},
		{PermShipmentsRead, "Read shipments"},
		{PermShipmentsWrite, "Manage shipments"},
	}

	all := make([]string, 0, len(perms))
	for _, p := range perms {
		all = append(all, p.Code)
	}

	return Catalog{
		Permissions: perms,
		Roles: []RoleDefinition{
			{
				Code:        RoleAdmin,
				Name:        "Administrator",
				Description: "Full access",
				Permissions: all,
			},
			{
				Code:        RoleManager,
				Name:        "Warehouse manager",
				Description: "Manages stock and fulfilment",
				Permissions: []string{
					PermUsersRead,
					PermProductsRead, PermProductsWrite,
					PermWarehousesRead, PermWarehousesWrite,
					PermInventoryRead, PermInventoryWrite,
					PermOrdersRead, PermOrdersWrite,
					PermShipmentsRead, PermShipmentsWrite,
				},
			},
			{
				Code:        RoleUser,
				Name:        "User",
				Description: "Default role for registered accounts",
				Permissions: []string{
					PermProductsRead,
					PermWarehousesRead,
					PermInventoryRead,
					PermOrdersRead,
					PermShipmentsRead,
				},
			},
		},
	}
}

// DefaultRoleProvider resolves the roles given to newly registered identities.
// Returning no roles is valid.
type DefaultRoleProvider interface {
	DefaultRoles(ctx context.Context) ([]*Role, error)
}

// DefaultRoleProviderFunc adapts a function to DefaultRoleProvider
type DefaultRoleProviderFunc func(ctx context.Context) ([]*Role, error)

// DefaultRoles implements DefaultRoleProvider
func (f DefaultRoleProviderFunc) DefaultRoles(ctx context.Context) ([]*Role, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx)
}

// NoDefaultRoles assigns nothing
var NoDefaultRoles DefaultRoleProvider = DefaultRoleProviderFunc(nil)

type codeRoleProvider struct {
	roles Roles
	codes []string
}

// NewCodeRoleProvider looks roles up by code at registration time. Codes
// without a stored role are skipped.
func NewCodeRoleProvider(roles Roles, codes ...string) DefaultRoleProvider {
	return codeRoleProvider{roles: roles, codes: dedupeStrings(codes)}
}

func (p codeRoleProvider) DefaultRoles(ctx context.Context) ([]*Role, error) {
	out := make([]*Role, 0, len(p.codes))
	for _, code := range p.codes {
		role, err := p.roles.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				continue
			}
			return nil, fmt.Errorf("default role %s: %w", code, err)
		}
		out = append(out, role)
	}
	return out, nil
}
