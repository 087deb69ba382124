package pipeline

import (
	"encoding/gob"
	"os"
)

// CacheFile is written by "crossdeploy configure" next to the deploy.star file
const CacheFile = ".crossdeploy-cache"

func init() {
	gob.Register(ProfileList{})
	gob.Register(Profile{})
	gob.Register(BuildCmd{})
}

func WriteCache(file string, options map[string]string, list ProfileList) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(options)
	if err != nil {
		return err
	}

	return encoder.Encode(list)
}

func ReadCache(file string) (map[string]string, ProfileList, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var options map[string]string
	err = decoder.Decode(&options)
	if err != nil {
		return nil, nil, err
	}

	var result ProfileList
	err = decoder.Decode(&result)
	if err != nil {
		return options, nil, err
	}

	return options, result, nil
}

// CacheFresh reports whether the cache file exists and is newer than the config
// script it was generated from.
func CacheFresh(cacheFile, configFile string) bool {
	cacheInfo, err := os.Stat(cacheFile)
	if err != nil {
		return false
	}

	configInfo, err := os.Stat(configFile)
	if err != nil {
		return false
	}

	return cacheInfo.ModTime().After(configInfo.ModTime())
}
