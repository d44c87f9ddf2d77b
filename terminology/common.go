package terminology

import "strings"

// Code systems whose ValueSets are bound without enumerated codes in the
// schema definitions.
const (
	SystemLanguages  = "urn:ietf:bcp:47"
	SystemCurrencies = "urn:iso:std:iso:4217"
	SystemYesNo      = "http://terminology.hl7.org/CodeSystem/v2-0136"

	ValueSetLanguages  = "http://hl7.org/fhir/ValueSet/languages"
	ValueSetCurrencies = "http://hl7.org/fhir/ValueSet/currencies"
	ValueSetYesNo      = "http://terminology.hl7.org/ValueSet/v2-0136"
)

const languages = `ar bn cs da de de-AT de-CH de-DE el en en-AU en-CA en-GB en-IN en-NZ
en-SG en-US es es-AR es-ES es-UY fi fr fr-BE fr-CH fr-FR fy fy-NL hi hr it it-CH it-IT
ja ko nl nl-BE nl-NL no no-NO pa pl pt pt-BR ru ru-RU sr sr-RS sv sv-SE te zh zh-CN
zh-HK zh-SG zh-TW`

const currencies = `AED AFN ALL AMD ANG AOA ARS AUD AWG AZN BAM BBD BDT BGN BHD BIF BMD
BND BOB BOV BRL BSD BTN BWP BYN BZD CAD CDF CHE CHF CHW CLF CLP CNY COP COU CRC CUC CUP
CVE CZK DJF DKK DOP DZD EGP ERN ETB EUR FJD FKP GBP GEL GHS GIP GMD GNF GTQ GYD HKD HNL
HRK HTG HUF IDR ILS INR IQD IRR ISK JMD JOD JPY KES KGS KHR KMF KPW KRW KWD KYD KZT LAK
LBP LKR LRD LSL LYD MAD MDL MGA MKD MMK MNT MOP MRU MUR MVR MWK MXN MXV MYR MZN NAD NGN
NIO NOK NPR NZD OMR PAB PEN PGK PHP PKR PLN PYG QAR RON RSD RUB RWF SAR SBD SCR SDG SEK
SGD SHP SLL SOS SRD SSP STN SVC SYP SZL THB TJS TMT TND TOP TRY TTD TWD TZS UAH UGX USD
USN UYI UYU UYW UZS VES VND VUV WST XAF XAG XAU XBA XBB XBC XBD XCD XDR XOF XPD XPF XPT
XSU XTS XUA XXX YER ZAR ZMW ZWL`

// loadCommon registers the common code systems and their ValueSets.
func (s *Store) loadCommon() {
	s.addEnumerated(SystemLanguages, ValueSetLanguages, codeList(languages))
	s.addEnumerated(SystemCurrencies, ValueSetCurrencies, codeList(currencies))
	s.addEnumerated(SystemYesNo, ValueSetYesNo, map[string]string{"Y": "Yes", "N": "No"})
}

func (s *Store) addEnumerated(system, valueSetURL string, codes map[string]string) {
	s.AddCodeSystem(system, codes)
	s.AddValueSet(valueSetURL, system, codes)
}

func codeList(fields string) map[string]string {
	codes := make(map[string]string)
	for _, code := range strings.Fields(fields) {
		codes[code] = ""
	}
	return codes
}
