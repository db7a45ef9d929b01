package redis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/eternalApril/moonview/internal/core"
)

// convert maps a decoded go-redis reply to a Value
func convert(val interface{}) core.Value {
	switch v := val.(type) {
	case nil:
		return core.MakeNull()
	case string:
		return core.MakeString(v)
	case []byte:
		return core.MakeBytes(v)
	case int64:
		return core.MakeInteger(v)
	case bool:
		if v {
			return core.MakeInteger(1)
		}
		return core.MakeInteger(0)
	case float64:
		return core.MakeString(strconv.FormatFloat(v, 'f', -1, 64))
	case error:
		return core.MakeError(v.Error())
	case []interface{}:
		values := make([]core.Value, len(v))
		for i, el := range v {
			values[i] = convert(el)
		}
		return core.MakeArray(values)
	case map[interface{}]interface{}:
		pairs := make([]core.Pair, 0, len(v))
		for field, value := range v {
			pairs = append(pairs, core.Pair{
				Field: []byte(convert(field).Render(" ")),
				Value: []byte(convert(value).Render(" ")),
			})
		}
		sort.Slice(pairs, func(i, j int) bool { return string(pairs[i].Field) < string(pairs[j].Field) })
		return core.MakeHash(pairs)
	}
	return core.MakeString(fmt.Sprint(val))
}

// shape gives typed containers to the replies of commands reading collections
func shape(argv []string, v core.Value) core.Value {
	if len(argv) == 0 || v.Type != core.TypeArray {
		return v
	}

	switch strings.ToUpper(argv[0]) {
	case "HGETALL":
		return toHash(v)
	case "SMEMBERS", "SINTER", "SUNION", "SDIFF":
		return core.MakeSet(v.Array)
	case "ZRANGE", "ZREVRANGE", "ZRANGEBYSCORE", "ZREVRANGEBYSCORE":
		if hasFlag(argv, "WITHSCORES") {
			return toZSet(v)
		}
	case "XRANGE", "XREVRANGE":
		return core.MakeStream(v.Array)
	}
	return v
}

// toHash reads a flat field/value array
func toHash(v core.Value) core.Value {
	pairs := make([]core.Pair, 0, len(v.Array)/2)
	for i := 0; i+1 < len(v.Array); i += 2 {
		pairs = append(pairs, core.Pair{
			Field: []byte(v.Array[i].Render(" ")),
			Value: []byte(v.Array[i+1].Render(" ")),
		})
	}
	return core.MakeHash(pairs)
}

// toZSet reads a flat member/score array or an array of [member, score] pairs
func toZSet(v core.Value) core.Value {
	members := make([]core.Member, 0, len(v.Array)/2)
	if len(v.Array) > 0 && v.Array[0].Type == core.TypeArray {
		for _, pair := range v.Array {
			if len(pair.Array) != 2 {
				continue
			}
			members = append(members, member(pair.Array[0], pair.Array[1]))
		}
		return core.MakeZSet(members)
	}

	for i := 0; i+1 < len(v.Array); i += 2 {
		members = append(members, member(v.Array[i], v.Array[i+1]))
	}
	return core.MakeZSet(members)
}

func member(name, score core.Value) core.Member {
	s, _ := score.AsString()
	f, _ := strconv.ParseFloat(s, 64)
	return core.Member{Member: []byte(name.Render(" ")), Score: f}
}

func hasFlag(argv []string, flag string) bool {
	for _, a := range argv[1:] {
		if strings.EqualFold(a, flag) {
			return true
		}
	}
	return false
}
