package dto

// UserQuery mirrors the account listing filters.
type UserQuery struct {
	Role   string `form:"role"`
	Active *bool  `form:"active"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// UpdateRoleRequest changes an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=member manager"`
}
