package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email" gorm:"index"`
	PhoneNumber         string         `json:"phoneNumber" gorm:"uniqueIndex"`
	Password            string         `json:"-"`
	SocialLogin         bool           `json:"socialLogin"`
	SocialProvider      string         `json:"socialProvider"`
	AvatarURL           string         `json:"avatarURL"`
	Bio                 string         `json:"bio"`
	City                string         `json:"city"`
	Listings            []Listing      `json:"listings" gorm:"foreignKey:OwnerID;references:ID"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	IsVerified          *bool          `json:"isVerified"`
	VerificationStatus  string         `json:"verificationStatus"` // pending, approved, rejected
	IDType              string         `json:"idType"`
	IDNumber            string         `json:"idNumber"`
	IDFrontImage        string         `json:"idFrontImage"`
	IDBackImage         string         `json:"idBackImage"`
	SelfieImage         string         `json:"selfieImage"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:user;index"` // user, cs, moderator, deposit_manager, admin, super_admin
}

// StaffRoles are the back-office roles with a support inbox.
var StaffRoles = []string{"cs", "moderator", "deposit_manager", "admin", "super_admin"}

// Custom JSON marshaling so PushTokens renders as a string array
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		PushTokens []string `json:"pushTokens,omitempty"`
		*Alias
	}{
		PushTokens: []string{},
		Alias:      (*Alias)(u),
	}

	if u.PushTokens != nil {
		var pushTokens []string
		if err := json.Unmarshal(u.PushTokens, &pushTokens); err == nil {
			aux.PushTokens = pushTokens
		}
	}

	// Listings are excluded by handlers to prevent circular reference
	return json.Marshal(aux)
}
