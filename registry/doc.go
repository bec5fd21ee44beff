// Package registry provides types, validation and an HTTP client for the Wally
// registry metadata API.
//
// A Wally registry is a Git repository whose root holds a configuration file
// (see [Config]) pointing at a metadata API. That API serves one document per
// package listing every published version:
//
//	GET {api}/v1/package-metadata/{author}/{name}
//
//	{
//	  "versions": [
//	    {
//	      "package": {"name": "roblox/roact", "version": "1.4.0", "realm": "shared", "registry": "..."},
//	      "dependencies": {},
//	      "server-dependencies": {},
//	      "dev-dependencies": {}
//	    }
//	  ]
//	}
//
// # Usage
//
// Fetch and validate a package's metadata:
//
//	client := registry.NewClient()
//	metadata, err := client.GetMetadata(ctx, apiURL, "roblox", "roact")
//	if err != nil {
//	    // Handle validation or network errors
//	}
//
// Validate arbitrary JSON:
//
//	validator := registry.NewValidator()
//	err := validator.ValidateConfig(jsonData)
package registry
