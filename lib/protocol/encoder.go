// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mymetro/beacon/lib/position"
)

// Request is an encoded collector request.
type Request struct {
	Method string
	URL    string
}

// Encoder carries the deployment options of the protocol. The zero
// value produces exactly the base wire contract over GET.
type Encoder struct {
	// Method defaults to GET.
	Method string

	// Extended appends charge, tripId, routeId and blockId (each only
	// when set) between batt and alarm. Only collectors that
	// understand trip correlation should enable it.
	Extended bool
}

// Encode builds the request for p against baseURL with the default
// encoder.
func Encode(baseURL string, p position.Position, alarm string) Request {
	return Encoder{}.Encode(baseURL, p, alarm)
}

// Encode builds the request for p. Any path (and query) already in
// baseURL is preserved; parameters are appended. An empty alarm
// omits the parameter.
func (e Encoder) Encode(baseURL string, p position.Position, alarm string) Request {
	var query queryBuilder
	query.add("id", p.DeviceID)
	query.add("timestamp", strconv.FormatInt(p.Time.Unix(), 10))
	query.add("lat", FormatNumber(p.Latitude))
	query.add("lon", FormatNumber(p.Longitude))
	query.add("speed", FormatNumber(p.Speed))
	query.add("bearing", FormatNumber(p.Bearing))
	query.add("altitude", FormatNumber(p.Altitude))
	query.add("accuracy", FormatNumber(p.Accuracy))
	// An unknown level is reported as 0.0, like a receiver with no
	// battery information.
	battery := 0.0
	if p.Battery.Known {
		battery = p.Battery.Level
	}
	query.add("batt", FormatNumber(battery))

	if e.Extended {
		if p.Battery.Charging {
			query.add("charge", "true")
		}
		query.addNonEmpty("tripId", p.TripID)
		query.addNonEmpty("routeId", p.RouteID)
		query.addNonEmpty("blockId", p.BlockID)
	}
	query.addNonEmpty("alarm", alarm)

	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return Request{Method: method, URL: baseURL + separator(baseURL) + query.String()}
}

// separator picks what joins baseURL and the new parameters.
func separator(baseURL string) string {
	index := strings.IndexByte(baseURL, '?')
	switch {
	case index < 0:
		return "?"
	case strings.HasSuffix(baseURL, "?"), strings.HasSuffix(baseURL, "&"):
		return ""
	default:
		return "&"
	}
}

type queryBuilder struct {
	strings.Builder
}

func (q *queryBuilder) add(key, value string) {
	if q.Len() > 0 {
		q.WriteByte('&')
	}
	q.WriteString(key)
	q.WriteByte('=')
	q.WriteString(escape(value))
}

func (q *queryBuilder) addNonEmpty(key, value string) {
	if value != "" {
		q.add(key, value)
	}
}
