// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Holding is one normalized portfolio position: an uppercase ticker and
// the summed quantity across every row that mentioned it.
type Holding struct {
	Ticker string  `json:"ticker"`
	Qty    float64 `json:"qty"`
}

// HoldingsPayload is the JSON document embedded in the conversation when
// a holdings file was parsed successfully.
type HoldingsPayload struct {
	Holdings []Holding `json:"holdings"`
}
