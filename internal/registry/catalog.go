package registry

import "github.com/ppiankov/rnpdno/internal/model"

// CatalogVersion identifies the built-in state catalog
const CatalogVersion = "inegi-2020"

// MexicanStates is the fixed catalog of federal entities, in INEGI code order
var MexicanStates = []model.State{
	{Code: "1", Name: "AGUASCALIENTES"},
	{Code: "2", Name: "BAJA CALIFORNIA"},
	{Code: "3", Name: "BAJA CALIFORNIA SUR"},
	{Code: "4", Name: "CAMPECHE"},
	{Code: "5", Name: "COAHUILA DE ZARAGOZA"},
	{Code: "6", Name: "COLIMA"},
	{Code: "7", Name: "CHIAPAS"},
	{Code: "8", Name: "CHIHUAHUA"},
	{Code: "9", Name: "CIUDAD DE MEXICO"},
	{Code: "10", Name: "DURANGO"},
	{Code: "11", Name: "GUANAJUATO"},
	{Code: "12", Name: "GUERRERO"},
	{Code: "13", Name: "HIDALGO"},
	{Code: "14", Name: "JALISCO"},
	{Code: "15", Name: "MEXICO"},
	{Code: "16", Name: "MICHOACAN DE OCAMPO"},
	{Code: "17", Name: "MORELOS"},
	{Code: "18", Name: "NAYARIT"},
	{Code: "19", Name: "NUEVO LEON"},
	{Code: "20", Name: "OAXACA"},
	{Code: "21", Name: "PUEBLA"},
	{Code: "22", Name: "QUERETARO"},
	{Code: "23", Name: "QUINTANA ROO"},
	{Code: "24", Name: "SAN LUIS POTOSI"},
	{Code: "25", Name: "SINALOA"},
	{Code: "26", Name: "SONORA"},
	{Code: "27", Name: "TABASCO"},
	{Code: "28", Name: "TAMAULIPAS"},
	{Code: "29", Name: "TLAXCALA"},
	{Code: "30", Name: "VERACRUZ DE IGNACIO DE LA LLAVE"},
	{Code: "31", Name: "YUCATAN"},
	{Code: "32", Name: "ZACATECAS"},
}
