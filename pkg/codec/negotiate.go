package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Имена атрибутов, которые понимает NegotiateAttribute
const (
	AttrPtime             = "ptime"
	AttrFmtp              = "fmtp"
	AttrPacketizationMode = "packetization-mode"
	AttrProfileLevelID    = "profile-level-id"
)

// fmtpParam - пара key=value из строки fmtp
type fmtpParam struct {
	key   string
	value string
}

// parseFmtp разбирает "a=1;b=2". Ведущий payload type ("126 a=1") отбрасывается.
func parseFmtp(s string) []fmtpParam {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		if _, err := strconv.Atoi(s[:i]); err == nil {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ";")
	params := make([]fmtpParam, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		params = append(params, fmtpParam{
			key:   strings.ToLower(strings.TrimSpace(key)),
			value: strings.TrimSpace(value),
		})
	}
	return params
}

func formatFmtp(params []fmtpParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.value == "" {
			parts = append(parts, p.key)
			continue
		}
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, ";")
}

func lookupParam(params []fmtpParam, key string) (string, bool) {
	for _, p := range params {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// FmtpValue возвращает значение параметра из строки fmtp
func FmtpValue(fmtp, key string) (string, bool) {
	return lookupParam(parseFmtp(fmtp), strings.ToLower(key))
}

// negotiateAttribute - общие правила согласования, одинаковые для всех кодеков.
// Результат детерминирован для фиксированного порядка (local, remote).
func negotiateAttribute(d Descriptor, name, local, remote string) (string, error) {
	local, remote = strings.TrimSpace(local), strings.TrimSpace(remote)

	switch strings.ToLower(name) {
	case AttrPtime:
		return negotiatePtime(d, local, remote)
	case AttrFmtp:
		return negotiateFmtp(d, local, remote)
	default:
		v, keep, err := negotiateParam(d, strings.ToLower(name), local, remote, local != "", remote != "")
		if err != nil || !keep {
			return "", err
		}
		return v, nil
	}
}

// negotiatePtime выбирает меньшее время пакетизации
func negotiatePtime(d Descriptor, local, remote string) (string, error) {
	switch {
	case local == "" && remote == "":
		return "", nil
	case local == "":
		local = remote
	case remote == "":
		remote = local
	}

	l, errL := strconv.Atoi(local)
	r, errR := strconv.Atoi(remote)
	if errL != nil || errR != nil || l <= 0 || r <= 0 {
		return "", negotiationFailed(d, AttrPtime, local, remote, "ptime должен быть положительным целым")
	}
	return strconv.Itoa(min(l, r)), nil
}

// negotiateFmtp согласует параметры fmtp по ключам.
// Порядок результата: ключи local, затем ключи, которые есть только у remote.
func negotiateFmtp(d Descriptor, local, remote string) (string, error) {
	lp, rp := parseFmtp(local), parseFmtp(remote)
	result := make([]fmtpParam, 0, len(lp)+len(rp))

	for _, p := range lp {
		rv, ok := lookupParam(rp, p.key)
		v, keep, err := negotiateParam(d, p.key, p.value, rv, true, ok)
		if err != nil {
			return "", err
		}
		if keep {
			result = append(result, fmtpParam{key: p.key, value: v})
		}
	}
	for _, p := range rp {
		if _, ok := lookupParam(lp, p.key); ok {
			continue
		}
		v, keep, err := negotiateParam(d, p.key, "", p.value, false, true)
		if err != nil {
			return "", err
		}
		if keep {
			result = append(result, fmtpParam{key: p.key, value: v})
		}
	}
	return formatFmtp(result), nil
}

// negotiateParam согласует один параметр. keep == false - параметр
// не попадает в результат.
func negotiateParam(d Descriptor, key, local, remote string, hasLocal, hasRemote bool) (string, bool, error) {
	switch key {
	case AttrPacketizationMode:
		l, r := local, remote
		if !hasLocal {
			l = "0"
		}
		if !hasRemote {
			r = "0"
		}
		if l != r {
			return "", false, negotiationFailed(d, key, local, remote, "режимы пакетизации несовместимы")
		}
		return l, hasLocal || hasRemote, nil

	case AttrProfileLevelID:
		if !hasLocal {
			return remote, hasRemote, nil
		}
		if !hasRemote {
			return local, true, nil
		}
		v, err := negotiateProfileLevelID(local, remote)
		if err != nil {
			return "", false, negotiationFailed(d, key, local, remote, err.Error())
		}
		return v, true, nil

	case "useinbandfec", "usedtx", "stereo", "sprop-stereo", "cbr", "level-asymmetry-allowed":
		if !hasLocal && !hasRemote {
			return "", false, nil
		}
		if local == "1" && remote == "1" {
			return "1", true, nil
		}
		return "0", true, nil

	case "maxplaybackrate", "sprop-maxcapturerate", "maxaveragebitrate", "max-fs", "max-fr", "max-mbps":
		return negotiateNumeric(d, key, local, remote, hasLocal, hasRemote, smaller)

	case "minptime":
		return negotiateNumeric(d, key, local, remote, hasLocal, hasRemote, larger)
	}

	switch {
	case !hasLocal:
		return remote, hasRemote, nil
	case !hasRemote:
		return local, true, nil
	case strings.EqualFold(local, remote):
		return local, true, nil
	default:
		return "", false, negotiationFailed(d, key, local, remote, "значения различаются")
	}
}

func negotiateNumeric(d Descriptor, key, local, remote string, hasLocal, hasRemote bool, pick func(a, b int) int) (string, bool, error) {
	if !hasLocal {
		return remote, hasRemote, nil
	}
	if !hasRemote {
		return local, true, nil
	}
	l, errL := strconv.Atoi(local)
	r, errR := strconv.Atoi(remote)
	if errL != nil || errR != nil {
		return "", false, negotiationFailed(d, key, local, remote, "ожидалось целое число")
	}
	return strconv.Itoa(pick(l, r)), true, nil
}

// negotiateProfileLevelID требует совпадения profile_idc и profile-iop,
// уровень выбирается меньший из двух.
func negotiateProfileLevelID(local, remote string) (string, error) {
	lp, ll, err := splitProfileLevelID(local)
	if err != nil {
		return "", err
	}
	rp, rl, err := splitProfileLevelID(remote)
	if err != nil {
		return "", err
	}
	if lp != rp {
		return "", fmt.Errorf("профили H.264 различаются: %s и %s", lp, rp)
	}
	return fmt.Sprintf("%s%02x", lp, min(ll, rl)), nil
}

func splitProfileLevelID(v string) (string, uint64, error) {
	if len(v) != 6 {
		return "", 0, fmt.Errorf("некорректный profile-level-id %q", v)
	}
	v = strings.ToLower(v)
	if _, err := strconv.ParseUint(v[:4], 16, 16); err != nil {
		return "", 0, fmt.Errorf("некорректный profile-level-id %q", v)
	}
	level, err := strconv.ParseUint(v[4:], 16, 8)
	if err != nil {
		return "", 0, fmt.Errorf("некорректный profile-level-id %q", v)
	}
	return v[:4], level, nil
}

func smaller(a, b int) int { return min(a, b) }

func larger(a, b int) int { return max(a, b) }
