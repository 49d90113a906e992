package models

// Receipt shareable link for a confirmed payment
type Receipt struct {
	TxHash    string `json:"txHash" gorm:"primaryKey;type:varchar(66)"`
	ShareLink string `json:"shareLink" gorm:"type:text;not null"`
	CreatedAt int64  `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Receipt
func (Receipt) TableName() string {
	return "receipts"
}
