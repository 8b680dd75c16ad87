// internal/model/owner.go
package model

// Owner is the account holder a campaign belongs to.
type Owner struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}
