package models

// Username cached mapping between a registry username and a wallet address.
// The on-chain UsernameRegistry is the source of truth; rows here are advisory.
type Username struct {
	ID             uint64 `json:"-" gorm:"primaryKey;autoIncrement"`
	Username       string `json:"username" gorm:"type:varchar(32);uniqueIndex;not null"` // lowercase, no '@'
	Address        string `json:"address" gorm:"type:varchar(42);index;not null"`        // lowercase 0x hex
	IsPremium      bool   `json:"isPremium" gorm:"not null;default:false"`
	TelegramChatID *int64 `json:"-" gorm:"index"` // set by the bot /link command
	CreatedAt      int64  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      int64  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Username
func (Username) TableName() string {
	return "usernames"
}
