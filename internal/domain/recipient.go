package domain

type Recipient struct {
	ID         int64  `json:"id"`
	ScheduleID int64  `json:"scheduleID"`
	Email      string `json:"email"`
	// domain 和 isExternal 在收件人列表每次变更时成对重新计算，不做惰性推导
	Domain     string `json:"domain"`
	IsExternal bool   `json:"isExternal"`
}
