// Package extract parses bedroom, bathroom, square footage, rent and promo
// details out of short free-form text fragments such as floor plan card text
// or special banners. Everything here is pure; callers pass in the clock.
package extract
