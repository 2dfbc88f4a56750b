package model

// Listing 商品/服务发布信息，聊天中只需要摘要
// Titles 为各语言的标题，键为 BCP 47 语言标签
type Listing struct {
	ID       int64             `json:"id,string" db:"id"`
	OwnerID  int64             `json:"ownerId,string" db:"owner_id"`
	Title    string            `json:"title" db:"title"`
	Titles   map[string]string `json:"titles,omitempty" db:"titles"`
	ImageURL string            `json:"imageUrl" db:"image_url"`
	Active   bool              `json:"active" db:"active"`
}
