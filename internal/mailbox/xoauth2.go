// Copyright (c) 2026 John Earle
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

package mailbox

import "github.com/emersion/go-sasl"

// xoauth2Client implements the XOAUTH2 SASL mechanism: a bearer access
// token is exchanged in place of a password during login.
type xoauth2Client struct {
	username string
	token    string
}

// newXoauth2Client builds the SASL client for a mailbox user and token.
func newXoauth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	// Wire format: user=<email>^Aauth=Bearer <token>^A^A
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// On failure the server sends a base64 JSON error blob; an empty
	// response lets it finish with the tagged NO.
	return []byte{}, nil
}
