package model

import (
	"fmt"
	"time"
)

// LocalTime 在 JSON 中序列化为 "YYYY-MM-DD HH:MM:SS"，用于管理端列表。
type LocalTime time.Time

const localTimeLayout = "2006-01-02 15:04:05"

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Time(t).Format(localTimeLayout))), nil
}

func (t LocalTime) String() string {
	return time.Time(t).Format(localTimeLayout)
}
