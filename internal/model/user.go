package model

import "time"

// Role names the capability set a user acts with.  The values are stored
// verbatim in users.role and in the "role" claim of access tokens.
type Role string

const (
	RoleAdmin     Role = "ADMIN"     // full administration
	RolePengawas  Role = "PENGAWAS"  // supervisor, scoped to the jobs they created
	RoleKeuangan  Role = "KEUANGAN"  // finance, scoped to payment reconciliation
	RoleMahasiswa Role = "MAHASISWA" // student owing compensation hours
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePengawas, RoleKeuangan, RoleMahasiswa:
		return true
	}
	return false
}

// User represents a row of the `users` table.  Students carry their
// academic metadata and the compensation balance; staff accounts leave
// those columns empty.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  PasswordHash – bcrypt hashed password (never serialised).
//  Name         – display name.
//  Role         – ADMIN, PENGAWAS, KEUANGAN or MAHASISWA.
//  NIM          – student number, unique when set.
//  Prodi        – study programme.
//  Kelas        – class group.
//  TotalHours   – outstanding compensation hours, never negative.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	NIM          string    `json:"nim,omitempty"`
	Prodi        string    `json:"prodi,omitempty"`
	Kelas        string    `json:"kelas,omitempty"`
	TotalHours   int       `json:"total_hours"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token handed to the client is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
