// Package memo 负责 VIP 付款标识与银行转账附言（addInfo）之间的编解码。
//
// 附言格式固定为 userId<用户ID>months<月数>，例如 userId1months3。
// 解码严格按该格式匹配，任何偏差都视为不匹配，避免把别人的转账算到错误的用户头上。
package memo

import (
	"errors"
	"strconv"
	"strings"
)

const (
	userPrefix  = "userId"
	monthsInfix = "months"
)

var ErrInvalidArgument = errors.New("用户ID和月数必须为正整数")

// Identifier 付款标识
type Identifier struct {
	UserID int64
	Months int
}

// Encode 生成规范附言
func Encode(userID int64, months int) (string, error) {
	if userID <= 0 || months <= 0 {
		return "", ErrInvalidArgument
	}
	return userPrefix + strconv.FormatInt(userID, 10) + monthsInfix + strconv.Itoa(months), nil
}

// String 返回规范附言，标识非法时返回空串
func (id Identifier) String() string {
	s, _ := Encode(id.UserID, id.Months)
	return s
}

// Decode 解析附言，只接受 Encode 能产生的字符串
func Decode(s string) (Identifier, bool) {
	rest, ok := strings.CutPrefix(s, userPrefix)
	if !ok {
		return Identifier{}, false
	}

	idx := strings.Index(rest, monthsInfix)
	if idx < 0 {
		return Identifier{}, false
	}
	userPart, monthsPart := rest[:idx], rest[idx+len(monthsInfix):]

	userID, ok := parsePositive(userPart, 64)
	if !ok {
		return Identifier{}, false
	}
	months, ok := parsePositive(monthsPart, strconv.IntSize)
	if !ok {
		return Identifier{}, false
	}

	return Identifier{UserID: userID, Months: int(months)}, true
}

// parsePositive 只接受无前导零的十进制正整数
func parsePositive(s string, bitSize int) (int64, bool) {
	if s == "" || s[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, bitSize)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
