package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EndpointInfo is the TXT payload of a gateway.
type EndpointInfo struct {
	Port    int
	TLSPort int
	Key     string
}

// EncodeEndpointTXT creates the TXT records for a gateway.
func EncodeEndpointTXT(info EndpointInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.Port > 0 {
		txt[TXTKeyPort] = strconv.Itoa(info.Port)
	}
	if info.TLSPort > 0 {
		txt[TXTKeyTLSPort] = strconv.Itoa(info.TLSPort)
	}
	if info.Key != "" {
		txt[TXTKeyKey] = info.Key
	}
	return txt
}

// DecodeEndpointTXT parses gateway TXT records. srvPort is used when no
// port record is present.
func DecodeEndpointTXT(txt TXTRecordMap, srvPort int) (EndpointInfo, error) {
	info := EndpointInfo{Port: srvPort, Key: txt[TXTKeyKey]}

	if s, ok := txt[TXTKeyPort]; ok {
		p, err := parsePort(s)
		if err != nil {
			return EndpointInfo{}, fmt.Errorf("%s: %w", TXTKeyPort, err)
		}
		info.Port = p
	}
	if s, ok := txt[TXTKeyTLSPort]; ok {
		p, err := parsePort(s)
		if err != nil {
			return EndpointInfo{}, fmt.Errorf("%s: %w", TXTKeyTLSPort, err)
		}
		info.TLSPort = p
	}

	if info.Port <= 0 && info.TLSPort <= 0 {
		return EndpointInfo{}, fmt.Errorf("%w: no port advertised", ErrInvalidPort)
	}
	return info, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return p, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
// A bare key maps to "".
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		switch {
		case found:
			txt[k] = v
		case k != "":
			txt[k] = ""
		}
	}
	return txt
}
