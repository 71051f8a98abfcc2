package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Listing struct {
	gorm.Model
	OwnerID       uint           `json:"ownerID" gorm:"index;not null"`
	Owner         User           `json:"owner" gorm:"foreignKey:OwnerID"`
	Title         string         `json:"title" gorm:"size:200;not null"`
	Description   string         `json:"description" gorm:"type:text"`
	Category      string         `json:"category" gorm:"size:64;index"`
	City          string         `json:"city" gorm:"size:120;index"`
	Images        datatypes.JSON `json:"images"`
	DailyPrice    float64        `json:"dailyPrice" gorm:"not null"`
	DepositAmount float64        `json:"depositAmount" gorm:"not null;default:0"`
	Status        string         `json:"status" gorm:"size:20;default:active;index"` // active, paused, removed
}

func (l *Listing) MarshalJSON() ([]byte, error) {
	type Alias Listing
	aux := &struct {
		Images []string `json:"images,omitempty"`
		*Alias
	}{
		Images: []string{},
		Alias:  (*Alias)(l),
	}

	if l.Images != nil {
		var images []string
		if err := json.Unmarshal(l.Images, &images); err == nil {
			aux.Images = images
		}
	}

	return json.Marshal(aux)
}
