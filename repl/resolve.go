// Copyright 2026 The Minnow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repl

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// ResolveModule fetches module bytes from a local path or an http(s) URL.
func ResolveModule(source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		return resolveHTTP(u)
	case "file":
		return os.ReadFile(u.Path)
	default:
		// No scheme: treat as a plain path.
		return os.ReadFile(source)
	}
}

func resolveHTTP(u *url.URL) ([]byte, error) {
	response, err := http.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected http status: %s", response.Status)
	}
	return io.ReadAll(response.Body)
}
