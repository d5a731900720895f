// Package profile reads and updates the signed-in user's row in the
// profiles table.
//
// Every call runs through the data API as the current user, so the row
// returned is the one RLS lets that user see. With nobody signed in Get
// returns (nil, nil) and Update fails with "User not authenticated".
package profile
