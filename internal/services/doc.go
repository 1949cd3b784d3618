// Package services is the remote catalog boundary.
//
// # Catalog Interface
//
// [Catalog] lists segments (playlists), the items inside a segment, the favorites
// (liked songs) list, and search results, all as [models.CatalogItem] values.
//
// # YouTube Music Implementation
//
// [YouTubeService] talks to the FastAPI proxy wrapping ytmusicapi. Requests go through
// a go-retryablehttp transport, and when a token is available an oauth2 transport on
// top of it adds a bearer token that refreshes itself. The token file path is also
// sent in the X-Auth-File header so the proxy can load the same credentials.
//
// # Device Login
//
// [DeviceLogin] runs the OAuth device-code flow against Google and stores the token
// through a [TokenStore].
//
// # Error Handling
//
//   - [shared.AuthenticationError] : 401/403 from the proxy, or no stored token
//   - [shared.ErrPlaylistNotFound] : unknown segment id
//   - [shared.ErrServiceUnavailable] : proxy unreachable
//   - [shared.ErrAPIRequest] : any other non-2xx response
package services
