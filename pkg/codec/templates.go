package codec

import (
	"strconv"
	"strings"
)

// Подстановки в шаблонах атрибутов
const (
	placeholderPayloadType    = "{pt}"
	placeholderProfileLevelID = "{profile-level-id}"
)

// DefaultH264ProfileLevelID - Constrained Baseline, level 3.1
const DefaultH264ProfileLevelID = "42e01f"

var videoFeedback = []string{
	"rtcp-fb:{pt} nack",
	"rtcp-fb:{pt} nack pli",
	"rtcp-fb:{pt} ccm fir",
}

// defaultTemplates - шаблоны атрибутов стандартных кодеков
var defaultTemplates = map[Descriptor][]string{
	OPUS:  {"fmtp:{pt} minptime=10;useinbandfec=1"},
	SPEEX: {"fmtp:{pt} vbr=on"},
	H264M1: append([]string{
		"fmtp:{pt} packetization-mode=1;profile-level-id={profile-level-id}",
	}, videoFeedback...),
	H264M0: append([]string{
		"fmtp:{pt} packetization-mode=0;profile-level-id={profile-level-id}",
	}, videoFeedback...),
	VP8: videoFeedback,
}

// formatTemplate подставляет payload type и настроенный профиль
func formatTemplate(tmpl string, d Descriptor, config Config) string {
	return strings.NewReplacer(
		placeholderPayloadType, strconv.Itoa(d.PayloadType),
		placeholderProfileLevelID, config.H264ProfileLevelID,
	).Replace(tmpl)
}
