/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shm

import (
	"fmt"
	"net/url"
	"strconv"
)

// Address defaults.
const (
	DefaultFrameCount = 2048
	DefaultFrameSize  = 4
)

// Address is a parsed fifo:// address.
type Address struct {
	Name       string // empty asks the Registry to generate one
	FrameCount uint32
	FrameSize  uint32
	Throttled  bool
}

// ParseAddress parses addresses of the form
// fifo://name?frames=2048&frame=4&throttle=1. All query parameters are
// optional.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("shm: parse fifo address: %w", err)
	}
	if u.Scheme != "fifo" {
		return Address{}, fmt.Errorf("shm: unsupported scheme: %q", u.Scheme)
	}
	name := u.Host
	if name == "" {
		// Allow fifo:///name via path
		name = u.Path
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
	}
	if name != "" {
		if err := validateName(name); err != nil {
			return Address{}, err
		}
	}

	addr := Address{Name: name, FrameCount: DefaultFrameCount, FrameSize: DefaultFrameSize, Throttled: true}
	q := u.Query()
	if v := q.Get("frames"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Address{}, fmt.Errorf("shm: invalid frames %q", v)
		}
		addr.FrameCount = uint32(n)
	}
	if v := q.Get("frame"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Address{}, fmt.Errorf("shm: invalid frame size %q", v)
		}
		addr.FrameSize = uint32(n)
	}
	if v := q.Get("throttle"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Address{}, fmt.Errorf("shm: invalid throttle: %w", err)
		}
		addr.Throttled = b
	}
	if _, err := CalculateLayout(addr.FrameCount, addr.FrameSize); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// String formats a as a fifo:// address that ParseAddress accepts.
func (a Address) String() string {
	q := url.Values{}
	q.Set("frames", strconv.FormatUint(uint64(a.FrameCount), 10))
	q.Set("frame", strconv.FormatUint(uint64(a.FrameSize), 10))
	q.Set("throttle", strconv.FormatBool(a.Throttled))
	u := url.URL{Scheme: "fifo", Host: a.Name, RawQuery: q.Encode()}
	return u.String()
}
