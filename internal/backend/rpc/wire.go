// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package rpc is the HTTP-based backend transport hierfs speaks to a remote
// object store. It plays the same role the Python SimpleXMLRPCServer did in
// the original prototype (a handful of get/put/delete/list verbs over a
// flat key space) but over HTTP with gorilla/mux routing and JSON bodies,
// so the wire format is inspectable with a plain browser or curl rather
// than requiring an XML-RPC client.
package rpc

// getResponse is the body returned by a successful GET /objects/{key}.
type getResponse struct {
	Data []byte `json:"data"`
}

// putRequest is the body sent by PUT /objects/{key}.
type putRequest struct {
	Data []byte `json:"data"`
}

// listResponse is the body returned by GET /objects, used by the backend
// launcher's diagnostics and by tests; not on the hot path.
type listResponse struct {
	Keys []string `json:"keys"`
}

// errorResponse is the body returned alongside any non-2xx status.
type errorResponse struct {
	Error string `json:"error"`
}
