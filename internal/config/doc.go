// Package config provides configuration parsing for the c2w server.
//
// The configuration is stored in c2w.json next to the server's working
// directory. Fields left out of the file keep their defaults; an address
// set to the empty string disables that listener.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "stream": ":1991",
//	    "datagram": ":1992",
//	    "admin": "127.0.0.1:8080",
//	    "mailboxSize": 256,
//	    "lossRate": 0
//	  },
//	  "arq": {
//	    "timeoutMs": 500,
//	    "maxRetries": 100
//	  },
//	  "catalog": {
//	    "file": "movies.yaml"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// The catalog may instead come from S3:
//
//	"catalog": {
//	  "s3": {"bucket": "c2w", "key": "movies.json", "region": "eu-west-3"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.NewPrinter(os.Stderr).Print(os.Stderr, err)
//	    os.Exit(1)
//	}
//
//	fmt.Println("Stream:", cfg.Server.Stream)
package config
