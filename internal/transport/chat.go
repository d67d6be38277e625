package transport

import "strconv"

// supergroupOffset is the prefix Telegram adds to supergroup and channel
// ids; t.me/c links use the id without it.
const supergroupOffset = 1_000_000_000_000

// DescribeChat derives the recorded chat metadata from what a message
// carries. For private chats title is the user's full name.
func DescribeChat(id int64, typ ChatType, title, username string) ChatInfo {
	info := ChatInfo{ID: id, ShiftedID: id, Type: typ, Title: title}

	if (typ == ChatSuperGroup || typ == ChatChannel) && id < -supergroupOffset {
		info.ShiftedID = -(id + supergroupOffset)
	}

	switch {
	case username != "":
		info.Mention = "@" + username
		info.URL = "https://t.me/" + username
	case typ == ChatPrivate:
		info.Mention = info.Title
		info.URL = "tg://user?id=" + strconv.FormatInt(id, 10)
	case info.ShiftedID != id:
		info.URL = "https://t.me/c/" + strconv.FormatInt(info.ShiftedID, 10)
	}
	return info
}
