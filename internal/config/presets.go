package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

type preset struct {
	Format      pixel.Format
	Compression codec.Compression
}

var presets = map[string]preset{
	// 3 arc-second SRTM .hgt tiles
	"srtm": {
		Format:      pixel.Format{Size: tile.Pt(1201, 1201), Encoding: pixel.SRTM()},
		Compression: codec.Raw,
	},
	// 8-bit RGB; the tile size must be given
	"color": {
		Format:      pixel.Format{Encoding: pixel.Color()},
		Compression: codec.PNG,
	},
}

var pointType = reflect.TypeOf(tile.Point{})

// PointHook decodes a tile.Point from "x,y", [x, y] or a {x, y} map
func PointHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != pointType {
			return data, nil
		}

		switch from.Kind() {
		case reflect.String:
			return parsePoint(data.(string))
		case reflect.Slice, reflect.Array:
			v := reflect.ValueOf(data)
			if v.Len() != 2 {
				return nil, fmt.Errorf("point needs 2 components, got %d", v.Len())
			}
			x, err := toInt(v.Index(0).Interface())
			if err != nil {
				return nil, err
			}
			y, err := toInt(v.Index(1).Interface())
			if err != nil {
				return nil, err
			}
			return tile.Pt(x, y), nil
		default:
			return data, nil
		}
	}
}

func parsePoint(s string) (tile.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return tile.Point{}, fmt.Errorf("point must be in format 'x,y', got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return tile.Point{}, fmt.Errorf("invalid x in point %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return tile.Point{}, fmt.Errorf("invalid y in point %q: %w", s, err)
	}
	return tile.Pt(x, y), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("point component %g is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("invalid point component %v (%T)", v, v)
	}
}

// ParsePoint parses the "x,y" form used on the command line
func ParsePoint(s string) (tile.Point, error) {
	return parsePoint(s)
}

// ParseBox parses "x0,y0,x1,y1" as a half-open pixel box
func ParseBox(s string) (tile.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tile.Box{}, fmt.Errorf("region must be in format 'x0,y0,x1,y1', got %q", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return tile.Box{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		n[i] = v
	}
	return tile.Bounds(tile.Pt(n[0], n[1]), tile.Pt(n[2], n[3])), nil
}
